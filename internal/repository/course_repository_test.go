package repository

import (
	"context"
	"course_gen_backend/internal/model"
	"course_gen_backend/pkg/database"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

func seedCourse(t *testing.T, repo *CourseRepository) *model.Course {
	t.Helper()

	course := &model.Course{
		Topic:   "Go Concurrency",
		OwnerID: 1,
		Units: []model.Unit{
			{
				Title: "Foundations",
				Order: 1,
				Chapters: []model.Chapter{
					{Title: "Channels", Order: 1, Status: model.ChapterIdle},
					{Title: "Goroutines", Order: 0, Status: model.ChapterIdle},
				},
			},
			{Title: "Patterns", Order: 0, Chapters: []model.Chapter{
				{Title: "Worker Pools", Order: 0, Status: model.ChapterIdle},
			}},
		},
	}
	require.NoError(t, repo.Create(course))
	return course
}

func TestFindByIDPreservesOrdering(t *testing.T) {
	repo := NewCourseRepository(newTestDB(t), nil)
	course := seedCourse(t, repo)

	loaded, err := repo.FindByID(course.ID)
	require.NoError(t, err)

	require.Len(t, loaded.Units, 2)
	assert.Equal(t, "Patterns", loaded.Units[0].Title, "单元按 sort_order 排序")
	assert.Equal(t, "Foundations", loaded.Units[1].Title)

	chapters := loaded.Units[1].Chapters
	require.Len(t, chapters, 2)
	assert.Equal(t, "Goroutines", chapters[0].Title, "章节按 sort_order 排序")
	assert.Equal(t, "Channels", chapters[1].Title)
}

func TestUpdateChapterTargetsSingleRow(t *testing.T) {
	repo := NewCourseRepository(newTestDB(t), nil)
	course := seedCourse(t, repo)

	loaded, err := repo.FindByID(course.ID)
	require.NoError(t, err)
	target := loaded.Units[1].Chapters[0]
	sibling := loaded.Units[1].Chapters[1]

	quiz := model.Quiz{
		Title: "Quiz",
		Questions: []model.QuizQuestion{
			{Question: "Q?", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: 2},
		},
	}
	err = repo.UpdateChapter(context.Background(), course.ID, target.ID, map[string]interface{}{
		"status":   model.ChapterSuccess,
		"video_id": "vid-1",
		"content":  "content",
		"summary":  "summary",
		"quiz":     quiz,
		"error":    "",
	})
	require.NoError(t, err)

	updated, err := repo.GetChapter(target.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ChapterSuccess, updated.Status)
	assert.Equal(t, "vid-1", updated.VideoID)
	require.Len(t, updated.Quiz.Questions, 1)
	assert.Equal(t, 2, updated.Quiz.Questions[0].CorrectAnswer)

	// 兄弟章节的行不受影响
	untouched, err := repo.GetChapter(sibling.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ChapterIdle, untouched.Status)
	assert.Empty(t, untouched.VideoID)
}

func TestUpdateChapterMissingRow(t *testing.T) {
	repo := NewCourseRepository(newTestDB(t), nil)
	course := seedCourse(t, repo)

	err := repo.UpdateChapter(context.Background(), course.ID, "no-such-chapter", map[string]interface{}{
		"status": model.ChapterLoading,
	})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestQuizColumnRoundTrip(t *testing.T) {
	repo := NewCourseRepository(newTestDB(t), nil)
	course := seedCourse(t, repo)

	loaded, err := repo.FindByID(course.ID)
	require.NoError(t, err)
	chapter := loaded.Units[0].Chapters[0]

	// 未生成时 quiz 为空值而不是空对象
	assert.True(t, chapter.Quiz.IsZero())

	err = repo.UpdateChapter(context.Background(), course.ID, chapter.ID, map[string]interface{}{
		"quiz": model.Quiz{Title: "T", Questions: []model.QuizQuestion{
			{Question: "Q", Options: []string{"1", "2", "3", "4"}, CorrectAnswer: 0},
		}},
	})
	require.NoError(t, err)

	reloaded, err := repo.GetChapter(chapter.ID)
	require.NoError(t, err)
	assert.Equal(t, "T", reloaded.Quiz.Title)

	// 清空回 NULL
	err = repo.UpdateChapter(context.Background(), course.ID, chapter.ID, map[string]interface{}{"quiz": nil})
	require.NoError(t, err)

	cleared, err := repo.GetChapter(chapter.ID)
	require.NoError(t, err)
	assert.True(t, cleared.Quiz.IsZero())
}

func TestSetLoadingAndListPublic(t *testing.T) {
	repo := NewCourseRepository(newTestDB(t), nil)
	course := seedCourse(t, repo)

	require.NoError(t, repo.SetLoading(course.ID, true))
	loaded, err := repo.FindByID(course.ID)
	require.NoError(t, err)
	assert.True(t, loaded.Loading)

	// 未公开的课程不进列表
	courses, total, err := repo.ListPublic(1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, courses)

	require.NoError(t, repo.UpdateCourseFields(course.ID, map[string]interface{}{"is_public": true}))
	courses, total, err = repo.ListPublic(1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, courses, 1)
	assert.Len(t, courses[0].Units, 2)
}

func TestIncrementChapterViews(t *testing.T) {
	repo := NewCourseRepository(newTestDB(t), nil)
	course := seedCourse(t, repo)

	loaded, err := repo.FindByID(course.ID)
	require.NoError(t, err)
	chapter := loaded.Units[0].Chapters[0]

	require.NoError(t, repo.IncrementChapterViews(chapter.ID))
	require.NoError(t, repo.IncrementChapterViews(chapter.ID))

	reloaded, err := repo.GetChapter(chapter.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Views)
}

func TestEnrollmentIsIdempotent(t *testing.T) {
	repo := NewCourseRepository(newTestDB(t), nil)
	course := seedCourse(t, repo)

	require.NoError(t, repo.Enroll(7, course.ID))
	require.NoError(t, repo.Enroll(7, course.ID))

	courses, err := repo.ListEnrolled(7)
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, course.ID, courses[0].ID)
}
