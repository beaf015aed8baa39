package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAI 按 prompt 内容分派回复的假模型
type fakeAI struct {
	replies []fakeReply
	prompts []string
}

type fakeReply struct {
	match string
	text  string
	err   error
}

func (f *fakeAI) Chat(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	for _, r := range f.replies {
		if strings.Contains(prompt, r.match) {
			return r.text, r.err
		}
	}
	return "", fmt.Errorf("unexpected prompt")
}

const validQuizJSON = `{"title":"Channels Quiz","questions":[
	{"question":"What does a channel do?","options":["Communicates","Sleeps","Paints","Flies"],"correctAnswer":0},
	{"question":"Which keyword sends?","options":["go","<-","func","var"],"correctAnswer":1}
]}`

func TestSynthesizeTranscriptGrounded(t *testing.T) {
	ai := &fakeAI{replies: []fakeReply{
		{match: "transcript", text: "# Channels\n\nChannels connect goroutines..."},
		{match: "Summarize", text: "Channels connect goroutines."},
		{match: "multiple-choice quiz", text: validQuizJSON},
	}}
	svc := NewSynthesisService(ai)

	result, err := svc.Synthesize(context.Background(), "Go Concurrency", "Basics", "Channels", "today we talk about channels")
	require.NoError(t, err)
	assert.Contains(t, result.Content, "Channels")
	assert.Equal(t, "Channels connect goroutines.", result.Summary)
	assert.Equal(t, "Channels Quiz", result.Quiz.Title)
	assert.Len(t, result.Quiz.Questions, 2)

	// 字幕要进正文的 prompt
	assert.Contains(t, ai.prompts[0], "today we talk about channels")
}

func TestSynthesizeTitleOnlyFallback(t *testing.T) {
	ai := &fakeAI{replies: []fakeReply{
		{match: "No transcript is available", text: "A chapter written from general knowledge."},
		{match: "Summarize", text: "Short summary."},
		{match: "multiple-choice quiz", text: validQuizJSON},
	}}
	svc := NewSynthesisService(ai)

	result, err := svc.Synthesize(context.Background(), "Go Concurrency", "Basics", "Channels", "")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Content)
	assert.NotEmpty(t, result.Summary)
	assert.False(t, result.Quiz.IsZero())
}

func TestSynthesizeContentFailureFailsChapter(t *testing.T) {
	ai := &fakeAI{replies: []fakeReply{
		{match: "transcript", err: fmt.Errorf("model unavailable")},
	}}
	svc := NewSynthesisService(ai)

	_, err := svc.Synthesize(context.Background(), "Topic", "Unit", "Chapter", "some transcript")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
}

func TestSynthesizeQuizFailureFallsBackToDefault(t *testing.T) {
	ai := &fakeAI{replies: []fakeReply{
		{match: "transcript", text: "Content body."},
		{match: "Summarize", text: "Summary."},
		{match: "multiple-choice quiz", text: "sorry, I cannot do that"},
	}}
	svc := NewSynthesisService(ai)

	result, err := svc.Synthesize(context.Background(), "Topic", "Unit", "Chapter", "transcript text")
	require.NoError(t, err)

	require.Len(t, result.Quiz.Questions, 1)
	q := result.Quiz.Questions[0]
	assert.Equal(t, "What is the main topic discussed in this chapter?", q.Question)
	assert.Len(t, q.Options, 4)
	assert.Equal(t, 0, q.CorrectAnswer)
}

func TestParseQuizExtractsFromNoisyOutput(t *testing.T) {
	noisy := "Sure! Here is your quiz:\n```json\n" + validQuizJSON + "\n```\nHope this helps!"

	quiz, err := parseQuiz(noisy, "Chapter")
	require.NoError(t, err)
	assert.Len(t, quiz.Questions, 2)
}

func TestParseQuizEnforcesQuestionShape(t *testing.T) {
	raw := `{"questions":[
		{"question":"Too few options","options":["a","b"],"correctAnswer":0},
		{"question":"Bad index","options":["a","b","c","d"],"correctAnswer":9},
		{"question":"","options":["a","b","c","d"],"correctAnswer":1}
	]}`

	quiz, err := parseQuiz(raw, "Shapes")
	require.NoError(t, err)

	// 只有越界索引的那道题能修复，其余丢弃
	require.Len(t, quiz.Questions, 1)
	assert.Equal(t, "Bad index", quiz.Questions[0].Question)
	assert.Equal(t, 0, quiz.Questions[0].CorrectAnswer)
	assert.Equal(t, "Shapes Quiz", quiz.Title)
}

func TestParseQuizRejectsEmptyOutput(t *testing.T) {
	_, err := parseQuiz("no braces here", "Chapter")
	assert.Error(t, err)

	_, err = parseQuiz(`{"title":"Empty","questions":[]}`, "Chapter")
	assert.Error(t, err)
}

func TestExtractJSONObject(t *testing.T) {
	fragment, ok := extractJSONObject(`prefix {"a":1} suffix`)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, fragment)

	_, ok = extractJSONObject("no json at all")
	assert.False(t, ok)

	_, ok = extractJSONObject("} reversed {")
	assert.False(t, ok)
}
