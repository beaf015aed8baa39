package service

import (
	"context"
	"course_gen_backend/internal/config"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(serverURL string, keys []string, retry RetryConfig) (*YouTubeClient, *[]time.Duration) {
	manager := NewYouTubeKeyManager(keys)
	client := NewYouTubeClient(config.YouTubeConfig{BaseURL: serverURL}, manager, retry)

	var sleeps []time.Duration
	client.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return client, &sleeps
}

func testRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  1000 * time.Millisecond,
		BackoffFactor: 2,
		MaxDelay:      10000 * time.Millisecond,
	}
}

func TestCallBackoffBoundOnServerErrors(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, sleeps := newTestClient(server.URL, []string{"key-1"}, testRetryConfig())

	result := client.Call(context.Background(), "/search", url.Values{})
	assert.Nil(t, result)

	// 首次请求 + 3 次重试
	assert.Equal(t, 4, requests)
	require.Len(t, *sleeps, 3)
	assert.Equal(t, 1000*time.Millisecond, (*sleeps)[0])
	assert.Equal(t, 2000*time.Millisecond, (*sleeps)[1])
	assert.Equal(t, 4000*time.Millisecond, (*sleeps)[2])

	var total time.Duration
	for _, d := range *sleeps {
		total += d
	}
	assert.Equal(t, 7000*time.Millisecond, total)

	// 瞬时错误不动凭证
	manager := client.keys
	assert.True(t, manager.HasActiveKeys())
}

func TestCallBackoffDelayCap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	retry := RetryConfig{
		MaxRetries:    4,
		InitialDelay:  1000 * time.Millisecond,
		BackoffFactor: 3,
		MaxDelay:      5000 * time.Millisecond,
	}
	client, sleeps := newTestClient(server.URL, []string{"key-1"}, retry)

	result := client.Call(context.Background(), "/search", url.Values{})
	assert.Nil(t, result)

	require.Len(t, *sleeps, 4)
	assert.Equal(t, 1000*time.Millisecond, (*sleeps)[0])
	assert.Equal(t, 3000*time.Millisecond, (*sleeps)[1])
	assert.Equal(t, 5000*time.Millisecond, (*sleeps)[2])
	assert.Equal(t, 5000*time.Millisecond, (*sleeps)[3])
}

func TestCallRotatesOnQuotaExceeded(t *testing.T) {
	var usedKeys []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		usedKeys = append(usedKeys, key)
		if key == "key-1" {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"error":{"message":"The request cannot be completed because you have exceeded your quota.","errors":[{"reason":"quotaExceeded"}]}}`)
			return
		}
		fmt.Fprint(w, `{"items":[]}`)
	}))
	defer server.Close()

	client, sleeps := newTestClient(server.URL, []string{"key-1", "key-2"}, testRetryConfig())

	result := client.Call(context.Background(), "/search", url.Values{})
	require.NotNil(t, result)

	// 换上新凭证后立即重试，不做退避
	assert.Empty(t, *sleeps)
	require.Len(t, usedKeys, 2)
	assert.Equal(t, "key-1", usedKeys[0])
	assert.Equal(t, "key-2", usedKeys[1])

	statuses := client.keys.KeyStatuses()
	assert.Equal(t, KeyQuotaExceeded, statuses[0].Status)
	assert.Equal(t, KeyActive, statuses[1].Status)
}

func TestCallDoesNotRetryClientErrors(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client, sleeps := newTestClient(server.URL, []string{"key-1"}, testRetryConfig())

	result := client.Call(context.Background(), "/search", url.Values{})
	assert.Nil(t, result)
	assert.Equal(t, 1, requests)
	assert.Empty(t, *sleeps)
	assert.True(t, client.keys.HasActiveKeys())
}

func TestCallFailsFastWithoutKeys(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL, nil, testRetryConfig())

	result := client.Call(context.Background(), "/search", url.Values{})
	assert.Nil(t, result)
	assert.Zero(t, requests)
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   APIErrorKind
	}{
		{"quota reason", 403, `{"error":{"errors":[{"reason":"quotaExceeded"}]}}`, ErrKindQuotaExceeded},
		{"rate limit reason", 403, `{"error":{"errors":[{"reason":"rateLimitExceeded"}]}}`, ErrKindQuotaExceeded},
		{"quota in message", 403, `{"error":{"message":"daily quota"}}`, ErrKindQuotaExceeded},
		{"plain 403", 403, `{"error":{"message":"forbidden"}}`, ErrKindAuthError},
		{"bad request", 400, ``, ErrKindInvalidRequest},
		{"not found", 404, ``, ErrKindNotFound},
		{"server error", 500, ``, ErrKindServerError},
		{"bad gateway", 502, ``, ErrKindServerError},
		{"teapot", 418, ``, ErrKindUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyError(tc.status, []byte(tc.body)))
		})
	}
}

func TestSearchVideoPrefersOverlappingResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Goroutines Channels", r.URL.Query().Get("q"))
		fmt.Fprint(w, `{"items":[
			{"id":{"videoId":"vid-cats"},"snippet":{"title":"Funny cats","description":"cats compilation"}},
			{"id":{"videoId":"vid-go"},"snippet":{"title":"Goroutines and Channels explained","description":"concurrency tutorial"}}
		]}`)
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL, []string{"key-1"}, testRetryConfig())

	// "in" 太短被丢掉，剩余词的一半以上要出现在标题或描述里
	videoID := client.SearchVideo(context.Background(), "Goroutines in Channels!")
	assert.Equal(t, "vid-go", videoID)
}

func TestSearchVideoFallsBackToFirstResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[
			{"id":{"videoId":"vid-first"},"snippet":{"title":"unrelated","description":""}},
			{"id":{"videoId":"vid-second"},"snippet":{"title":"also unrelated","description":""}}
		]}`)
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL, []string{"key-1"}, testRetryConfig())

	videoID := client.SearchVideo(context.Background(), "quantum entanglement basics")
	assert.Equal(t, "vid-first", videoID)
}

func TestSearchVideoEmptyResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[]}`)
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL, []string{"key-1"}, testRetryConfig())

	assert.Empty(t, client.SearchVideo(context.Background(), "anything at all"))
	assert.Empty(t, client.SearchVideo(context.Background(), "a an to"), "查询里没有有效词")
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "Intro Testing", normalizeQuery("Intro to Testing!"))
	assert.Equal(t, "", normalizeQuery("a of to"))
	assert.Equal(t, "concurrency", normalizeQuery("  concurrency?? "))
}
