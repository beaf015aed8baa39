package service

import (
	"context"
	"course_gen_backend/internal/config"
	"course_gen_backend/pkg/logger"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TranscriptFetcher 字幕获取接口，生成流水线依赖此抽象
type TranscriptFetcher interface {
	Fetch(ctx context.Context, videoID string) (string, bool)
}

// TranscriptService 调用字幕服务并在进程内缓存结果。
// 未命中（视频没有字幕、服务出错）也会缓存，避免同一课程里
// 重复章节对同一个视频反复打空请求
type TranscriptService struct {
	baseURL    string
	lang       string
	httpClient *http.Client
	cache      sync.Map // videoID -> transcriptEntry
}

type transcriptEntry struct {
	text string
	ok   bool
}

func NewTranscriptService(cfg config.TranscriptConfig) *TranscriptService {
	return &TranscriptService{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		lang:       cfg.Lang,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type transcriptFragment struct {
	Text string `json:"text"`
}

// Fetch 拉取视频字幕全文。第二个返回值表示是否拿到了可用文本
func (s *TranscriptService) Fetch(ctx context.Context, videoID string) (string, bool) {
	if videoID == "" {
		return "", false
	}

	if cached, found := s.cache.Load(videoID); found {
		entry := cached.(transcriptEntry)
		return entry.text, entry.ok
	}

	text, ok := s.fetchRemote(ctx, videoID)
	s.cache.Store(videoID, transcriptEntry{text: text, ok: ok})
	return text, ok
}

func (s *TranscriptService) fetchRemote(ctx context.Context, videoID string) (string, bool) {
	reqURL := fmt.Sprintf("%s/api/transcript?videoId=%s&lang=%s",
		s.baseURL, url.QueryEscape(videoID), url.QueryEscape(s.lang))

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return "", false
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		logger.Log.Warn("字幕服务请求失败", zap.String("videoId", videoID), zap.Error(err))
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Log.Warn("字幕服务返回非 200",
			zap.String("videoId", videoID),
			zap.Int("status", resp.StatusCode))
		return "", false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false
	}

	var fragments []transcriptFragment
	if err := json.Unmarshal(body, &fragments); err != nil {
		logger.Log.Warn("字幕响应解析失败", zap.String("videoId", videoID), zap.Error(err))
		return "", false
	}

	if len(fragments) == 0 {
		return "", false
	}

	parts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		t := strings.TrimSpace(strings.ReplaceAll(f.Text, "\n", " "))
		if t != "" {
			parts = append(parts, t)
		}
	}

	joined := strings.Join(parts, " ")
	if joined == "" {
		return "", false
	}
	return joined, true
}
