package service

import (
	"bytes"
	"context"
	"course_gen_backend/internal/config"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// AIClient 大模型调用的抽象，生成服务通过它注入，测试时替换为假实现
type AIClient interface {
	Chat(ctx context.Context, prompt string) (string, error)
}

// AIService OpenAI 兼容接口的封装
type AIService struct {
	config     config.AIConfig
	httpClient *http.Client
}

func NewAIService(cfg config.AIConfig) *AIService {
	return &AIService{
		config: cfg,
		httpClient: &http.Client{
			// 长文本生成较慢，超时放宽
			Timeout: 180 * time.Second,
		},
	}
}

type AIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionRequest struct {
	Model    string          `json:"model"`
	Messages []AIChatMessage `json:"messages"`
}

type ChatCompletionResponse struct {
	Choices []struct {
		Message AIChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (s *AIService) Chat(ctx context.Context, prompt string) (string, error) {
	messages := []AIChatMessage{
		{
			Role:    "system",
			Content: "You are an expert educational content creator. Follow the formatting requirements of each request exactly.",
		},
		{
			Role:    "user",
			Content: prompt,
		},
	}

	reqBody := ChatCompletionRequest{
		Model:    s.config.Model,
		Messages: messages,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.config.BaseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("AI API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", err
	}

	if len(result.Choices) > 0 {
		return result.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("AI returned no choices")
}
