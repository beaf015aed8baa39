package service

import (
	"context"
	"course_gen_backend/internal/model"
	"course_gen_backend/internal/repository"
	"course_gen_backend/internal/util"
	"course_gen_backend/pkg/logger"
	"course_gen_backend/pkg/monitoring"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// VideoResolver 按查询词解析视频 ID，没有匹配返回空串
type VideoResolver interface {
	SearchVideo(ctx context.Context, query string) string
}

// ChapterResult 单章节生成结果
type ChapterResult struct {
	ChapterID string `json:"chapterId"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// GenerationResult 整课生成的汇总
type GenerationResult struct {
	CourseID string          `json:"courseId"`
	Success  bool            `json:"success"`
	Chapters []ChapterResult `json:"chapters"`
}

// GenerationService 章节生成编排。所有章节管线并发执行、互相隔离：
// 任一章节失败只影响它自己的行，其余章节照常完成
type GenerationService struct {
	repo        *repository.CourseRepository
	videos      VideoResolver
	transcripts TranscriptFetcher
	synth       Synthesizer
}

func NewGenerationService(repo *repository.CourseRepository, videos VideoResolver, transcripts TranscriptFetcher, synth Synthesizer) *GenerationService {
	return &GenerationService{repo: repo, videos: videos, transcripts: transcripts, synth: synth}
}

// chapterJob 投递给单章节管线的素材
type chapterJob struct {
	courseID  string
	topic     string
	unitTitle string
	chapter   model.Chapter
}

// GenerateCourse 全量生成：对课程里的每个章节并发跑一条管线，
// 等全部落定后再清掉课程级 loading（汇合屏障）
func (s *GenerationService) GenerateCourse(ctx context.Context, courseID string, userID uint) (*GenerationResult, error) {
	course, err := s.repo.FindByID(courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrCourseNotFound
		}
		return nil, err
	}
	if course.OwnerID != userID {
		return nil, util.ErrPermissionDenied
	}
	if course.Loading {
		return nil, util.ErrCourseGenerating
	}

	var jobs []chapterJob
	for _, unit := range course.Units {
		for _, ch := range unit.Chapters {
			jobs = append(jobs, chapterJob{
				courseID:  course.ID,
				topic:     course.Topic,
				unitTitle: unit.Title,
				chapter:   ch,
			})
		}
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("课程没有章节")
	}

	if err := s.repo.SetLoading(courseID, true); err != nil {
		return nil, err
	}

	results := make([]ChapterResult, len(jobs))
	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job chapterJob) {
			defer wg.Done()
			results[i] = s.processChapter(ctx, job)
		}(i, job)
	}
	wg.Wait()

	if err := s.repo.SetLoading(courseID, false); err != nil {
		logger.Log.Error("清除课程生成标志失败", zap.String("courseId", courseID), zap.Error(err))
	}

	aggregate := &GenerationResult{CourseID: courseID, Success: true, Chapters: results}
	for _, r := range results {
		if !r.Success {
			aggregate.Success = false
			break
		}
	}
	return aggregate, nil
}

// RegenerateChapter 只重跑单个章节的管线，不触碰其他章节
func (s *GenerationService) RegenerateChapter(ctx context.Context, courseID, chapterID string, userID uint) (*ChapterResult, error) {
	course, err := s.repo.FindByID(courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrCourseNotFound
		}
		return nil, err
	}
	if course.OwnerID != userID {
		return nil, util.ErrPermissionDenied
	}

	var job *chapterJob
	for _, unit := range course.Units {
		for _, ch := range unit.Chapters {
			if ch.ID == chapterID {
				job = &chapterJob{
					courseID:  course.ID,
					topic:     course.Topic,
					unitTitle: unit.Title,
					chapter:   ch,
				}
				break
			}
		}
	}
	if job == nil {
		return nil, util.ErrChapterNotFound
	}
	if job.chapter.Status == model.ChapterLoading {
		return nil, util.ErrCourseGenerating
	}

	result := s.processChapter(ctx, *job)
	return &result, nil
}

// processChapter 单章节管线：loading → 找视频 → 拉字幕 → 合成 → 终态写入。
// 任何 panic 都在这里兜住，转成该章节的 error 写入，绝不影响兄弟章节
func (s *GenerationService) processChapter(ctx context.Context, job chapterJob) (result ChapterResult) {
	result = ChapterResult{ChapterID: job.chapter.ID}

	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("章节管线 panic",
				zap.String("chapterId", job.chapter.ID),
				zap.Any("panic", r))
			msg := fmt.Sprintf("internal error: %v", r)
			s.writeChapterError(ctx, job, msg)
			result.Success = false
			result.Error = msg
		}
		status := "error"
		if result.Success {
			status = "success"
		}
		monitoring.ChapterGenerated.WithLabelValues(status).Inc()
	}()

	// 进入 loading 时清掉上一轮的所有产物，重新生成不留残留
	if err := s.repo.UpdateChapter(ctx, job.courseID, job.chapter.ID, map[string]interface{}{
		"status":   model.ChapterLoading,
		"video_id": "",
		"content":  "",
		"summary":  "",
		"error":    "",
		"quiz":     nil,
	}); err != nil {
		result.Error = "标记章节生成中失败: " + err.Error()
		return result
	}

	videoID := s.videos.SearchVideo(ctx, job.chapter.Title)
	if videoID == "" {
		// 章节标题太泛时加上课程主题再搜一次
		videoID = s.videos.SearchVideo(ctx, job.topic+" "+job.chapter.Title)
	}
	if videoID == "" {
		s.writeChapterError(ctx, job, util.ErrNoVideoFound.Error())
		result.Error = util.ErrNoVideoFound.Error()
		return result
	}

	transcript, ok := s.transcripts.Fetch(ctx, videoID)
	if !ok {
		// 没字幕退回仅标题模式，不算失败
		logger.Log.Info("视频无可用字幕，按标题生成",
			zap.String("chapterId", job.chapter.ID),
			zap.String("videoId", videoID))
		transcript = ""
	}

	synthesized, err := s.synth.Synthesize(ctx, job.topic, job.unitTitle, job.chapter.Title, transcript)
	if err != nil {
		s.writeChapterError(ctx, job, err.Error())
		result.Error = err.Error()
		return result
	}

	if err := s.repo.UpdateChapter(ctx, job.courseID, job.chapter.ID, map[string]interface{}{
		"status":   model.ChapterSuccess,
		"video_id": videoID,
		"content":  synthesized.Content,
		"summary":  synthesized.Summary,
		"quiz":     synthesized.Quiz,
		"error":    "",
	}); err != nil {
		result.Error = "写入章节结果失败: " + err.Error()
		return result
	}

	result.Success = true
	return result
}

// writeChapterError 尽力写入错误终态，写失败只记日志
func (s *GenerationService) writeChapterError(ctx context.Context, job chapterJob, msg string) {
	if len(msg) > 500 {
		msg = msg[:500]
	}
	if err := s.repo.UpdateChapter(ctx, job.courseID, job.chapter.ID, map[string]interface{}{
		"status": model.ChapterError,
		"error":  msg,
	}); err != nil {
		logger.Log.Error("写入章节错误状态失败",
			zap.String("chapterId", job.chapter.ID),
			zap.Error(err))
	}
}
