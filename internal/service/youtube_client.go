package service

import (
	"context"
	"course_gen_backend/internal/config"
	"course_gen_backend/pkg/logger"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// APIErrorKind 视频搜索接口的错误分类
type APIErrorKind string

const (
	ErrKindQuotaExceeded  APIErrorKind = "quota_exceeded"
	ErrKindAuthError      APIErrorKind = "auth_error"
	ErrKindInvalidRequest APIErrorKind = "invalid_request"
	ErrKindNotFound       APIErrorKind = "not_found"
	ErrKindServerError    APIErrorKind = "server_error"
	ErrKindNetworkError   APIErrorKind = "network_error"
	ErrKindUnknown        APIErrorKind = "unknown"
)

// RetryConfig 有界重试策略：退避只用于瞬时错误，凭证轮换只用于配额/鉴权错误。
// 两者混在一起要么把好凭证的重试预算浪费在别人的配额错误上，
// 要么因为一次 500 把所有凭证烧光。
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	BackoffFactor int
	MaxDelay      time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  1000 * time.Millisecond,
		BackoffFactor: 2,
		MaxDelay:      10000 * time.Millisecond,
	}
}

func RetryConfigFrom(cfg config.GenerationConfig) RetryConfig {
	return RetryConfig{
		MaxRetries:    cfg.MaxRetries,
		InitialDelay:  time.Duration(cfg.InitialDelayMs) * time.Millisecond,
		BackoffFactor: cfg.BackoffFactor,
		MaxDelay:      time.Duration(cfg.MaxDelayMs) * time.Millisecond,
	}
}

// YouTubeClient 带凭证注入、错误分类和重试退避的搜索接口客户端
type YouTubeClient struct {
	keys       *YouTubeKeyManager
	baseURL    string
	retry      RetryConfig
	httpClient *http.Client

	// 测试时替换，避免真实睡眠
	sleep func(time.Duration)
}

func NewYouTubeClient(cfg config.YouTubeConfig, keys *YouTubeKeyManager, retry RetryConfig) *YouTubeClient {
	return &YouTubeClient{
		keys:       keys,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		retry:      retry,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		sleep:      time.Sleep,
	}
}

type apiErrorBody struct {
	Error *struct {
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// classifyError 按状态码和响应体归类错误
func classifyError(statusCode int, body []byte) APIErrorKind {
	switch {
	case statusCode == http.StatusForbidden:
		var parsed apiErrorBody
		_ = json.Unmarshal(body, &parsed)
		if parsed.Error != nil {
			for _, e := range parsed.Error.Errors {
				switch e.Reason {
				case "quotaExceeded", "dailyLimitExceeded", "rateLimitExceeded":
					return ErrKindQuotaExceeded
				}
			}
			msg := strings.ToLower(parsed.Error.Message)
			if strings.Contains(msg, "quota") || strings.Contains(msg, "limit exceeded") {
				return ErrKindQuotaExceeded
			}
		}
		// 其余 403 一律按鉴权问题处理
		return ErrKindAuthError
	case statusCode == http.StatusBadRequest:
		return ErrKindInvalidRequest
	case statusCode == http.StatusNotFound:
		return ErrKindNotFound
	case statusCode >= 500:
		return ErrKindServerError
	default:
		return ErrKindUnknown
	}
}

// handleAPIError 根据分类更新凭证池状态。
// retryable 表示是否值得再试；backoff 表示重试前要不要等：
// 换上了新凭证就不等（新凭证没被限流），瞬时错误才退避
func (c *YouTubeClient) handleAPIError(kind APIErrorKind, detail string) (retryable, backoff bool) {
	switch kind {
	case ErrKindQuotaExceeded:
		c.keys.MarkQuotaExceeded(detail)
		_, ok := c.keys.RotateToNextKey()
		return ok, false
	case ErrKindAuthError:
		c.keys.MarkError(detail)
		_, ok := c.keys.RotateToNextKey()
		return ok, false
	case ErrKindInvalidRequest, ErrKindNotFound:
		// 客户端问题，换凭证和重试都没用
		return false, false
	case ErrKindServerError, ErrKindNetworkError:
		// 瞬时问题，不动凭证
		return true, true
	default:
		c.keys.MarkError(detail)
		return c.keys.HasActiveKeys(), true
	}
}

// Call 发起一次带凭证的请求。所有重试路径耗尽后返回 nil，而不是错误——
// 调用方（视频解析）把 nil 当作"没找到"处理
func (c *YouTubeClient) Call(ctx context.Context, endpoint string, params url.Values) json.RawMessage {
	retries := 0
	delay := c.retry.InitialDelay

	for retries <= c.retry.MaxRetries {
		apiKey, ok := c.keys.CurrentKey()
		if !ok {
			apiKey, ok = c.keys.RotateToNextKey()
		}
		if !ok {
			// 完全没有可用凭证时立即失败，不进重试循环
			logger.Log.Error("没有可用的 YouTube API 凭证")
			return nil
		}

		reqParams := url.Values{}
		for k, vs := range params {
			reqParams[k] = vs
		}
		reqParams.Set("key", apiKey)

		reqURL := c.baseURL + endpoint + "?" + reqParams.Encode()

		kind, body := c.doRequest(ctx, reqURL)
		if kind == "" {
			return body
		}

		retryable, backoff := c.handleAPIError(kind, string(body))
		if !retryable {
			logger.Log.Error("YouTube API 错误不可重试",
				zap.String("kind", string(kind)),
				zap.String("endpoint", endpoint))
			return nil
		}

		if retries >= c.retry.MaxRetries {
			logger.Log.Error("YouTube API 重试次数耗尽",
				zap.String("kind", string(kind)),
				zap.String("endpoint", endpoint))
			return nil
		}

		if backoff {
			c.sleep(delay)
			delay = delay * time.Duration(c.retry.BackoffFactor)
			if delay > c.retry.MaxDelay {
				delay = c.retry.MaxDelay
			}
		}
		retries++
	}

	return nil
}

// doRequest 执行单次请求。成功时 kind 为空串并返回响应体；
// 失败时返回分类和原始错误体
func (c *YouTubeClient) doRequest(ctx context.Context, reqURL string) (APIErrorKind, []byte) {
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return ErrKindNetworkError, []byte(err.Error())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ErrKindNetworkError, []byte(err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ErrKindNetworkError, []byte(err.Error())
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return "", body
	}

	return classifyError(resp.StatusCode, body), body
}

var nonWordPattern = regexp.MustCompile(`[^\w\s]`)

// normalizeQuery 去掉标点和过短的词
func normalizeQuery(query string) string {
	cleaned := nonWordPattern.ReplaceAllString(query, "")
	words := strings.Fields(cleaned)
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) > 2 {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"snippet"`
	} `json:"items"`
}

// SearchVideo 按关键词解析出最匹配的视频 ID，没有结果返回空串。
// 选择规则：标题+描述覆盖查询词 50% 以上的第一个候选，否则退回第一个结果
func (c *YouTubeClient) SearchVideo(ctx context.Context, query string) string {
	cleanQuery := normalizeQuery(query)
	if cleanQuery == "" {
		return ""
	}

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("q", cleanQuery)
	params.Set("type", "video")
	params.Set("maxResults", "5")
	params.Set("videoDuration", "any")
	params.Set("videoEmbeddable", "true")
	params.Set("relevanceLanguage", "en")

	raw := c.Call(ctx, "/search", params)
	if raw == nil {
		return ""
	}

	var result searchResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		logger.Log.Warn("搜索响应解析失败", zap.Error(err))
		return ""
	}

	if len(result.Items) == 0 {
		logger.Log.Warn("搜索无结果", zap.String("query", cleanQuery))
		return ""
	}

	queryWords := strings.Fields(strings.ToLower(cleanQuery))
	threshold := (len(queryWords) + 1) / 2

	for _, item := range result.Items {
		haystack := strings.ToLower(item.Snippet.Title + " " + item.Snippet.Description)
		matching := 0
		for _, w := range queryWords {
			if strings.Contains(haystack, w) {
				matching++
			}
		}
		if matching >= threshold {
			logger.Log.Debug("选中视频",
				zap.String("title", item.Snippet.Title),
				zap.String("videoId", item.ID.VideoID))
			return item.ID.VideoID
		}
	}

	return result.Items[0].ID.VideoID
}
