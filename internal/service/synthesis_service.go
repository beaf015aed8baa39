package service

import (
	"context"
	"course_gen_backend/internal/model"
	"course_gen_backend/pkg/logger"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Synthesizer 内容合成接口：把章节素材（字幕或仅标题）变成正文、摘要和测验
type Synthesizer interface {
	Synthesize(ctx context.Context, topic, unitTitle, chapterTitle, transcript string) (*SynthesisResult, error)
}

// SynthesisResult 单个章节的合成产物
type SynthesisResult struct {
	Content string
	Summary string
	Quiz    model.Quiz
}

// SynthesisService 基于大模型生成章节内容。测验生成失败不阻断章节，
// 会退回一份占位测验；正文生成失败则整章失败
type SynthesisService struct {
	ai AIClient
}

func NewSynthesisService(ai AIClient) *SynthesisService {
	return &SynthesisService{ai: ai}
}

const maxTranscriptChars = 12000

func (s *SynthesisService) Synthesize(ctx context.Context, topic, unitTitle, chapterTitle, transcript string) (*SynthesisResult, error) {
	if len(transcript) > maxTranscriptChars {
		transcript = transcript[:maxTranscriptChars]
	}

	content, err := s.generateContent(ctx, topic, unitTitle, chapterTitle, transcript)
	if err != nil {
		return nil, fmt.Errorf("生成章节正文失败: %w", err)
	}

	summary, err := s.generateSummary(ctx, chapterTitle, content)
	if err != nil {
		logger.Log.Warn("生成摘要失败，使用正文开头", zap.String("chapter", chapterTitle), zap.Error(err))
		summary = truncateWords(content, 60)
	}

	quiz := s.generateQuiz(ctx, topic, chapterTitle, content)

	return &SynthesisResult{Content: content, Summary: summary, Quiz: quiz}, nil
}

func (s *SynthesisService) generateContent(ctx context.Context, topic, unitTitle, chapterTitle, transcript string) (string, error) {
	var prompt string
	if transcript != "" {
		prompt = fmt.Sprintf(`Write an educational chapter for a course about "%s".
Unit: "%s"
Chapter title: "%s"

Base the chapter on the following video transcript. Organize the material into a clear, well-structured lesson of 500-800 words. Use markdown headings and lists where helpful. Do not mention that the material comes from a transcript or a video.

Transcript:
%s`, topic, unitTitle, chapterTitle, transcript)
	} else {
		prompt = fmt.Sprintf(`Write an educational chapter for a course about "%s".
Unit: "%s"
Chapter title: "%s"

No transcript is available for this chapter, so write it from your own knowledge of the subject. Produce a clear, well-structured lesson of 500-800 words. Use markdown headings and lists where helpful.`, topic, unitTitle, chapterTitle)
	}

	content, err := s.ai.Chat(ctx, prompt)
	if err != nil {
		return "", err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("模型返回空正文")
	}
	return content, nil
}

func (s *SynthesisService) generateSummary(ctx context.Context, chapterTitle, content string) (string, error) {
	prompt := fmt.Sprintf(`Summarize the following chapter titled "%s" in at most 250 words. Write plain prose, no headings.

%s`, chapterTitle, content)

	summary, err := s.ai.Chat(ctx, prompt)
	if err != nil {
		return "", err
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", fmt.Errorf("模型返回空摘要")
	}
	return summary, nil
}

// generateQuiz 生成章节测验。任何失败都退回默认占位测验
func (s *SynthesisService) generateQuiz(ctx context.Context, topic, chapterTitle, content string) model.Quiz {
	prompt := fmt.Sprintf(`Create a multiple-choice quiz for a chapter titled "%s" in a course about "%s".

Return ONLY a JSON object with this exact shape, no markdown fences and no commentary:
{"title": "quiz title", "questions": [{"question": "...", "options": ["...", "...", "...", "..."], "correctAnswer": 0}]}

Rules: 3 to 5 questions, each with exactly 4 options, correctAnswer is the zero-based index of the right option. Base every question on the chapter content below.

Chapter content:
%s`, chapterTitle, topic, content)

	raw, err := s.ai.Chat(ctx, prompt)
	if err != nil {
		logger.Log.Warn("生成测验失败，使用默认测验", zap.String("chapter", chapterTitle), zap.Error(err))
		return defaultQuiz(chapterTitle)
	}

	quiz, err := parseQuiz(raw, chapterTitle)
	if err != nil {
		logger.Log.Warn("测验解析失败，使用默认测验", zap.String("chapter", chapterTitle), zap.Error(err))
		return defaultQuiz(chapterTitle)
	}
	return quiz
}

// extractJSONObject 从模型输出里截取第一个 '{' 到最后一个 '}' 的片段。
// 模型经常在 JSON 前后加客套话或代码围栏
func extractJSONObject(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

func parseQuiz(raw, chapterTitle string) (model.Quiz, error) {
	fragment, ok := extractJSONObject(raw)
	if !ok {
		return model.Quiz{}, fmt.Errorf("输出中没有 JSON 对象")
	}

	var quiz model.Quiz
	if err := json.Unmarshal([]byte(fragment), &quiz); err != nil {
		return model.Quiz{}, err
	}

	if len(quiz.Questions) == 0 {
		return model.Quiz{}, fmt.Errorf("测验没有题目")
	}
	if quiz.Title == "" {
		quiz.Title = chapterTitle + " Quiz"
	}

	valid := make([]model.QuizQuestion, 0, len(quiz.Questions))
	for _, q := range quiz.Questions {
		if q.Question == "" || len(q.Options) != 4 {
			continue
		}
		if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
			q.CorrectAnswer = 0
		}
		valid = append(valid, q)
	}
	if len(valid) == 0 {
		return model.Quiz{}, fmt.Errorf("没有合法题目")
	}
	quiz.Questions = valid
	return quiz, nil
}

// defaultQuiz 占位测验，保证测验失败时章节仍可用
func defaultQuiz(chapterTitle string) model.Quiz {
	return model.Quiz{
		Title: chapterTitle + " Quiz",
		Questions: []model.QuizQuestion{
			{
				Question: "What is the main topic discussed in this chapter?",
				Options: []string{
					"The core concepts of the chapter",
					"An unrelated subject",
					"Administrative details",
					"None of the above",
				},
				CorrectAnswer: 0,
			},
		},
	}
}

func truncateWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return text
	}
	return strings.Join(words[:n], " ") + "..."
}
