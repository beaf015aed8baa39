package service

import (
	"context"
	"course_gen_backend/internal/model"
	"course_gen_backend/internal/repository"
	"course_gen_backend/internal/util"
	"course_gen_backend/pkg/logger"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateCourseRequest 创建课程的入参。Units 为空时由模型起草完整大纲
type CreateCourseRequest struct {
	Topic       string   `json:"courseTopic" binding:"required"`
	Description string   `json:"description"`
	Units       []string `json:"units"`
	IsPublic    bool     `json:"isPublic"`
}

// UpdateCourseRequest 课程元信息更新，零值字段不更新
type UpdateCourseRequest struct {
	Topic       string `json:"courseTopic"`
	Description string `json:"description"`
	IsPublic    *bool  `json:"isPublic"`
}

type CourseService struct {
	repo *repository.CourseRepository
	ai   AIClient
}

func NewCourseService(repo *repository.CourseRepository, ai AIClient) *CourseService {
	return &CourseService{repo: repo, ai: ai}
}

// outlineDraft 模型起草的大纲结构
type outlineDraft struct {
	Description string `json:"description"`
	Units       []struct {
		Title    string `json:"title"`
		Chapters []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"chapters"`
	} `json:"units"`
}

// CreateCourse 创建课程骨架：由模型起草单元/章节大纲，所有章节初始为 idle。
// 大纲只定结构，内容生成是单独触发的流程
func (s *CourseService) CreateCourse(ctx context.Context, ownerID uint, req *CreateCourseRequest) (*model.Course, error) {
	draft, err := s.draftOutline(ctx, req.Topic, req.Units)
	if err != nil {
		return nil, err
	}

	course := &model.Course{
		Topic:       req.Topic,
		Description: req.Description,
		OwnerID:     ownerID,
		IsPublic:    req.IsPublic,
	}
	if course.Description == "" {
		course.Description = draft.Description
	}

	for ui, u := range draft.Units {
		unit := model.Unit{Title: u.Title, Order: ui}
		for ci, ch := range u.Chapters {
			unit.Chapters = append(unit.Chapters, model.Chapter{
				Title:       ch.Title,
				Description: ch.Description,
				Order:       ci,
				Status:      model.ChapterIdle,
			})
		}
		course.Units = append(course.Units, unit)
	}

	if err := s.repo.Create(course); err != nil {
		return nil, err
	}

	// 创建者自动进入自己的课程列表
	if err := s.repo.Enroll(ownerID, course.ID); err != nil {
		logger.Log.Warn("创建者加入课程失败", zap.String("courseId", course.ID), zap.Error(err))
	}

	return course, nil
}

func (s *CourseService) draftOutline(ctx context.Context, topic string, unitTitles []string) (*outlineDraft, error) {
	var prompt string
	if len(unitTitles) > 0 {
		prompt = fmt.Sprintf(`You are designing a course about "%s" with these units:
%s

For each unit, propose 2-4 chapter titles with a one-sentence description each. Also write a short course description.

Return ONLY a JSON object, no markdown fences and no commentary:
{"description": "...", "units": [{"title": "unit title", "chapters": [{"title": "...", "description": "..."}]}]}

Keep the unit titles exactly as given, in the given order.`, topic, "- "+strings.Join(unitTitles, "\n- "))
	} else {
		prompt = fmt.Sprintf(`You are designing a course about "%s".

Propose 3-5 units, each with 2-4 chapter titles and a one-sentence description per chapter. Also write a short course description.

Return ONLY a JSON object, no markdown fences and no commentary:
{"description": "...", "units": [{"title": "unit title", "chapters": [{"title": "...", "description": "..."}]}]}`, topic)
	}

	raw, err := s.ai.Chat(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("起草课程大纲失败: %w", err)
	}

	fragment, ok := extractJSONObject(raw)
	if !ok {
		return nil, fmt.Errorf("大纲输出中没有 JSON 对象")
	}

	var draft outlineDraft
	if err := json.Unmarshal([]byte(fragment), &draft); err != nil {
		return nil, fmt.Errorf("大纲解析失败: %w", err)
	}
	if len(draft.Units) == 0 {
		return nil, fmt.Errorf("大纲没有单元")
	}
	for _, u := range draft.Units {
		if u.Title == "" || len(u.Chapters) == 0 {
			return nil, fmt.Errorf("大纲单元不完整")
		}
	}
	return &draft, nil
}

func (s *CourseService) GetCourse(id string, userID uint) (*model.Course, error) {
	course, err := s.repo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrCourseNotFound
		}
		return nil, err
	}
	if !course.IsPublic && course.OwnerID != userID {
		return nil, util.ErrPermissionDenied
	}
	return course, nil
}

func (s *CourseService) ListPublic(page, limit int) ([]model.Course, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 50 {
		limit = 10
	}
	return s.repo.ListPublic(page, limit)
}

// UpdateCourse 更新课程元信息，生成中禁止修改
func (s *CourseService) UpdateCourse(id string, userID uint, req *UpdateCourseRequest) (*model.Course, error) {
	course, err := s.ownedCourse(id, userID)
	if err != nil {
		return nil, err
	}
	if course.Loading {
		return nil, util.ErrCourseGenerating
	}

	fields := map[string]interface{}{}
	if req.Topic != "" {
		fields["topic"] = req.Topic
	}
	if req.Description != "" {
		fields["description"] = req.Description
	}
	if req.IsPublic != nil {
		fields["is_public"] = *req.IsPublic
	}
	if len(fields) > 0 {
		if err := s.repo.UpdateCourseFields(id, fields); err != nil {
			return nil, err
		}
	}
	return s.repo.FindByID(id)
}

// Publish 把课程设为公开
func (s *CourseService) Publish(id string, userID uint) (*model.Course, error) {
	course, err := s.ownedCourse(id, userID)
	if err != nil {
		return nil, err
	}
	if course.Loading {
		return nil, util.ErrCourseGenerating
	}
	if err := s.repo.UpdateCourseFields(id, map[string]interface{}{"is_public": true}); err != nil {
		return nil, err
	}
	return s.repo.FindByID(id)
}

func (s *CourseService) DeleteCourse(id string, userID uint) error {
	course, err := s.ownedCourse(id, userID)
	if err != nil {
		return err
	}
	if course.Loading {
		return util.ErrCourseGenerating
	}
	return s.repo.Delete(id)
}

// Enroll 把公开课程加入用户课程列表
func (s *CourseService) Enroll(userID uint, courseID string) error {
	course, err := s.repo.FindByID(courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrCourseNotFound
		}
		return err
	}
	if !course.IsPublic && course.OwnerID != userID {
		return util.ErrPermissionDenied
	}
	return s.repo.Enroll(userID, courseID)
}

func (s *CourseService) ListUserCourses(userID uint) ([]model.Course, error) {
	return s.repo.ListEnrolled(userID)
}

// RecordChapterView 章节浏览计数
func (s *CourseService) RecordChapterView(chapterID string) error {
	if err := s.repo.IncrementChapterViews(chapterID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrChapterNotFound
		}
		return err
	}
	return nil
}

func (s *CourseService) ownedCourse(id string, userID uint) (*model.Course, error) {
	course, err := s.repo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrCourseNotFound
		}
		return nil, err
	}
	if course.OwnerID != userID {
		return nil, util.ErrPermissionDenied
	}
	return course, nil
}
