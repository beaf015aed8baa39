package service

import (
	"course_gen_backend/pkg/logger"
	"course_gen_backend/pkg/monitoring"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

type KeyStatus string

const (
	KeyActive        KeyStatus = "active"
	KeyQuotaExceeded KeyStatus = "quota_exceeded"
	KeyError         KeyStatus = "error"
)

// 连续失败达到该次数后凭证被降级为 error
const keyErrorThreshold = 3

type apiKey struct {
	key        string
	label      string
	status     KeyStatus
	lastUsed   time.Time
	errorCount int
	lastError  string
}

// KeyStatusView 凭证状态的脱敏视图，不含原始 key
type KeyStatusView struct {
	Index      int       `json:"index"`
	Label      string    `json:"label"`
	Status     KeyStatus `json:"status"`
	LastUsed   time.Time `json:"lastUsed"`
	ErrorCount int       `json:"errorCount"`
	LastError  string    `json:"lastError,omitempty"`
}

// YouTubeKeyManager 多凭证轮换管理。
// 配额按凭证独立计算：遇到配额信号立即降级并切换，避免在已耗尽的凭证上浪费重试；
// quota_exceeded（外部限制）与 error（疑似坏凭证）分开标记，便于运维分别处置。
// 状态只存内存，进程生命周期内有效。
type YouTubeKeyManager struct {
	mu      sync.Mutex
	keys    []apiKey
	current int
}

func NewYouTubeKeyManager(rawKeys []string) *YouTubeKeyManager {
	m := &YouTubeKeyManager{}
	for i, k := range rawKeys {
		if k == "" {
			continue
		}
		label := "YOUTUBE_API_KEY"
		if i > 0 {
			label = fmt.Sprintf("YOUTUBE_API_KEY_%d", i+1)
		}
		m.keys = append(m.keys, apiKey{
			key:    k,
			label:  label,
			status: KeyActive,
		})
	}

	if len(m.keys) == 0 {
		logger.Log.Error("未配置任何 YouTube API 凭证")
	}

	return m
}

// CurrentKey 返回当前凭证；当前凭证不可用时会先尝试切换到任一 active 的凭证
func (m *YouTubeKeyManager) CurrentKey() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.keys) == 0 {
		return "", false
	}

	if m.keys[m.current].status == KeyActive {
		m.keys[m.current].lastUsed = time.Now()
		return m.keys[m.current].key, true
	}

	for i := range m.keys {
		if m.keys[i].status == KeyActive {
			m.current = i
			m.keys[i].lastUsed = time.Now()
			logger.Log.Debug("切换到可用凭证", zap.String("label", m.keys[i].label))
			return m.keys[i].key, true
		}
	}

	return "", false
}

// RotateToNextKey 从当前位置向后（环形）找下一个 active 凭证
func (m *YouTubeKeyManager) RotateToNextKey() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.keys) == 0 {
		return "", false
	}

	for checked := 0; checked < len(m.keys); checked++ {
		m.current = (m.current + 1) % len(m.keys)
		if m.keys[m.current].status == KeyActive {
			m.keys[m.current].lastUsed = time.Now()
			monitoring.YouTubeKeyRotations.Inc()
			logger.Log.Info("凭证已轮换", zap.String("label", m.keys[m.current].label))
			return m.keys[m.current].key, true
		}
	}

	logger.Log.Warn("轮换失败：没有可用的凭证")
	return "", false
}

func (m *YouTubeKeyManager) MarkQuotaExceeded(detail string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.keys) == 0 {
		return
	}

	m.keys[m.current].status = KeyQuotaExceeded
	m.keys[m.current].lastError = detail
	logger.Log.Warn("凭证配额耗尽", zap.String("label", m.keys[m.current].label))
}

func (m *YouTubeKeyManager) MarkError(detail string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.keys) == 0 {
		return
	}

	m.keys[m.current].errorCount++
	m.keys[m.current].lastError = detail

	if m.keys[m.current].errorCount >= keyErrorThreshold {
		m.keys[m.current].status = KeyError
		logger.Log.Error("凭证连续失败已降级",
			zap.String("label", m.keys[m.current].label),
			zap.Int("errorCount", m.keys[m.current].errorCount))
	}
}

// ResetKey 恢复单个凭证，运维手动触发，不做自动恢复
func (m *YouTubeKeyManager) ResetKey(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if index < 0 || index >= len(m.keys) {
		return fmt.Errorf("key index %d out of range", index)
	}

	m.keys[index].status = KeyActive
	m.keys[index].errorCount = 0
	m.keys[index].lastError = ""
	return nil
}

func (m *YouTubeKeyManager) ResetAllKeys() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.keys {
		m.keys[i].status = KeyActive
		m.keys[i].errorCount = 0
		m.keys[i].lastError = ""
	}
}

func (m *YouTubeKeyManager) KeyStatuses() []KeyStatusView {
	m.mu.Lock()
	defer m.mu.Unlock()

	views := make([]KeyStatusView, 0, len(m.keys))
	for i, k := range m.keys {
		views = append(views, KeyStatusView{
			Index:      i,
			Label:      k.label,
			Status:     k.status,
			LastUsed:   k.lastUsed,
			ErrorCount: k.errorCount,
			LastError:  k.lastError,
		})
	}
	return views
}

func (m *YouTubeKeyManager) HasActiveKeys() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range m.keys {
		if k.status == KeyActive {
			return true
		}
	}
	return false
}
