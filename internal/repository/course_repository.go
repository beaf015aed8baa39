package repository

import (
	"context"
	"course_gen_backend/internal/model"
	"course_gen_backend/pkg/logger"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ChapterEvent 章节进度事件，通过 Redis 发布给 SSE 订阅端
type ChapterEvent struct {
	CourseID  string              `json:"courseId"`
	ChapterID string              `json:"chapterId"`
	Status    model.ChapterStatus `json:"status"`
	Error     string              `json:"error,omitempty"`
}

type CourseRepository struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewCourseRepository(db *gorm.DB, rdb *redis.Client) *CourseRepository {
	return &CourseRepository{DB: db, Redis: rdb}
}

func (r *CourseRepository) Create(course *model.Course) error {
	return r.DB.Create(course).Error
}

func (r *CourseRepository) FindByID(id string) (*model.Course, error) {
	var course model.Course
	err := r.DB.
		Preload("Units", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
		Preload("Units.Chapters", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
		First(&course, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &course, nil
}

func (r *CourseRepository) ListPublic(page, limit int) ([]model.Course, int64, error) {
	var courses []model.Course
	var total int64

	query := r.DB.Model(&model.Course{}).Where("is_public = ?", true)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Preload("Units", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
		Preload("Units.Chapters", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&courses).Error
	return courses, total, err
}

func (r *CourseRepository) Save(course *model.Course) error {
	return r.DB.Save(course).Error
}

// UpdateCourseFields 仅更新课程级字段，不触碰单元和章节
func (r *CourseRepository) UpdateCourseFields(id string, fields map[string]interface{}) error {
	return r.DB.Model(&model.Course{}).Where("id = ?", id).Updates(fields).Error
}

func (r *CourseRepository) SetLoading(id string, loading bool) error {
	return r.DB.Model(&model.Course{}).Where("id = ?", id).Update("loading", loading).Error
}

func (r *CourseRepository) Delete(id string) error {
	return r.DB.Delete(&model.Course{}, "id = ?", id).Error
}

func (r *CourseRepository) GetChapter(chapterID string) (*model.Chapter, error) {
	var chapter model.Chapter
	err := r.DB.First(&chapter, "id = ?", chapterID).Error
	if err != nil {
		return nil, err
	}
	return &chapter, nil
}

// UpdateChapter 对单个章节行做定向更新。
// 并发的章节管线各自只写自己的行，互不覆盖（避免整课快照写回造成的丢失更新）。
// patch 的 key 为列名：status / video_id / content / summary / error / quiz
func (r *CourseRepository) UpdateChapter(ctx context.Context, courseID, chapterID string, patch map[string]interface{}) error {
	result := r.DB.Model(&model.Chapter{}).Where("id = ?", chapterID).Updates(patch)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	r.publishChapterEvent(ctx, courseID, chapterID, patch)
	return nil
}

func (r *CourseRepository) IncrementChapterViews(chapterID string) error {
	return r.DB.Model(&model.Chapter{}).Where("id = ?", chapterID).
		Update("views", gorm.Expr("views + 1")).Error
}

// publishChapterEvent 进度事件推送，失败只记日志不影响主流程
func (r *CourseRepository) publishChapterEvent(ctx context.Context, courseID, chapterID string, patch map[string]interface{}) {
	if r.Redis == nil {
		return
	}

	event := ChapterEvent{CourseID: courseID, ChapterID: chapterID}
	if s, ok := patch["status"].(model.ChapterStatus); ok {
		event.Status = s
	}
	if e, ok := patch["error"].(string); ok {
		event.Error = e
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return
	}

	if err := r.Redis.Publish(ctx, ChapterEventChannel(courseID), payload).Err(); err != nil {
		logger.Log.Warn("发布章节进度事件失败",
			zap.String("courseId", courseID),
			zap.String("chapterId", chapterID),
			zap.Error(err))
	}
}

func ChapterEventChannel(courseID string) string {
	return fmt.Sprintf("course:events:%s", courseID)
}

// SubscribeEvents 订阅某课程的章节进度事件
func (r *CourseRepository) SubscribeEvents(ctx context.Context, courseID string) *redis.PubSub {
	return r.Redis.Subscribe(ctx, ChapterEventChannel(courseID))
}

func (r *CourseRepository) Enroll(userID uint, courseID string) error {
	enrollment := model.Enrollment{UserID: userID, CourseID: courseID}
	return r.DB.Where("user_id = ? AND course_id = ?", userID, courseID).
		FirstOrCreate(&enrollment).Error
}

func (r *CourseRepository) ListEnrolled(userID uint) ([]model.Course, error) {
	var courses []model.Course
	err := r.DB.
		Joins("JOIN enrollments ON enrollments.course_id = courses.id").
		Where("enrollments.user_id = ? AND enrollments.deleted_at IS NULL", userID).
		Preload("Units", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
		Preload("Units.Chapters", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
		Find(&courses).Error
	return courses, err
}

func (r *CourseRepository) ListByOwner(ownerID uint) ([]model.Course, error) {
	var courses []model.Course
	err := r.DB.Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&courses).Error
	return courses, err
}
