package service

import (
	"context"
	"course_gen_backend/internal/model"
	"course_gen_backend/internal/repository"
	"course_gen_backend/internal/util"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validOutlineJSON = `{
	"description": "A practical course.",
	"units": [
		{"title": "Foundations", "chapters": [
			{"title": "Goroutines", "description": "About goroutines"},
			{"title": "Channels", "description": "About channels"}
		]},
		{"title": "Patterns", "chapters": [
			{"title": "Worker Pools", "description": "About pools"}
		]}
	]
}`

func TestCreateCourseDraftsOutline(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewCourseRepository(db, nil)
	ai := &fakeAI{replies: []fakeReply{
		{match: "designing a course", text: "Here you go!\n" + validOutlineJSON},
	}}
	svc := NewCourseService(repo, ai)

	course, err := svc.CreateCourse(context.Background(), 1, &CreateCourseRequest{Topic: "Go Concurrency"})
	require.NoError(t, err)

	assert.Equal(t, "A practical course.", course.Description)
	require.Len(t, course.Units, 2)
	assert.Equal(t, "Foundations", course.Units[0].Title)
	require.Len(t, course.Units[0].Chapters, 2)
	for _, unit := range course.Units {
		for _, ch := range unit.Chapters {
			assert.Equal(t, model.ChapterIdle, ch.Status)
			assert.Empty(t, ch.Content)
		}
	}

	// 创建者自动加入自己的课程
	mine, err := svc.ListUserCourses(1)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, course.ID, mine[0].ID)
}

func TestCreateCourseKeepsProvidedUnits(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewCourseRepository(db, nil)
	ai := &fakeAI{replies: []fakeReply{
		{match: "with these units", text: validOutlineJSON},
	}}
	svc := NewCourseService(repo, ai)

	course, err := svc.CreateCourse(context.Background(), 1, &CreateCourseRequest{
		Topic: "Go Concurrency",
		Units: []string{"Foundations", "Patterns"},
	})
	require.NoError(t, err)
	require.Len(t, course.Units, 2)

	// 单元标题要进 prompt
	require.Len(t, ai.prompts, 1)
	assert.Contains(t, ai.prompts[0], "- Foundations")
	assert.Contains(t, ai.prompts[0], "- Patterns")
}

func TestCreateCourseRejectsMalformedOutline(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewCourseRepository(db, nil)

	for _, reply := range []string{
		"no json here",
		`{"units":[]}`,
		`{"units":[{"title":"","chapters":[{"title":"x"}]}]}`,
	} {
		ai := &fakeAI{replies: []fakeReply{{match: "designing a course", text: reply}}}
		svc := NewCourseService(repo, ai)

		_, err := svc.CreateCourse(context.Background(), 1, &CreateCourseRequest{Topic: "Anything"})
		assert.Error(t, err, reply)
	}

	var count int64
	require.NoError(t, db.Model(&model.Course{}).Count(&count).Error)
	assert.Zero(t, count, "大纲失败时不能落库")
}

func TestCourseVisibility(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewCourseRepository(db, nil)
	svc := NewCourseService(repo, &fakeAI{})
	course := seedCourse(t, db, 1)

	// 私有课程：所有者可见，其他人 403
	got, err := svc.GetCourse(course.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, course.ID, got.ID)

	_, err = svc.GetCourse(course.ID, 2)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	_, err = svc.GetCourse("missing", 1)
	assert.ErrorIs(t, err, util.ErrCourseNotFound)

	// 发布后人人可见
	_, err = svc.Publish(course.ID, 1)
	require.NoError(t, err)

	got, err = svc.GetCourse(course.ID, 2)
	require.NoError(t, err)
	assert.True(t, got.IsPublic)

	listed, total, err := svc.ListPublic(1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, listed, 1)
}

func TestUpdateCourseBlockedWhileGenerating(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewCourseRepository(db, nil)
	svc := NewCourseService(repo, &fakeAI{})
	course := seedCourse(t, db, 1)

	require.NoError(t, repo.SetLoading(course.ID, true))

	_, err := svc.UpdateCourse(course.ID, 1, &UpdateCourseRequest{Topic: "New Topic"})
	assert.ErrorIs(t, err, util.ErrCourseGenerating)

	_, err = svc.Publish(course.ID, 1)
	assert.ErrorIs(t, err, util.ErrCourseGenerating)

	require.NoError(t, repo.SetLoading(course.ID, false))
	updated, err := svc.UpdateCourse(course.ID, 1, &UpdateCourseRequest{Topic: "New Topic"})
	require.NoError(t, err)
	assert.Equal(t, "New Topic", updated.Topic)
}

func TestEnrollRequiresVisibility(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewCourseRepository(db, nil)
	svc := NewCourseService(repo, &fakeAI{})
	course := seedCourse(t, db, 1)

	// 私有课程外人不能加入
	err := svc.Enroll(2, course.ID)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	_, err = svc.Publish(course.ID, 1)
	require.NoError(t, err)

	require.NoError(t, svc.Enroll(2, course.ID))
	// 重复加入幂等
	require.NoError(t, svc.Enroll(2, course.ID))

	mine, err := svc.ListUserCourses(2)
	require.NoError(t, err)
	require.Len(t, mine, 1)
}
