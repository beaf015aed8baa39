package controller

import (
	"course_gen_backend/internal/service"
	"course_gen_backend/internal/util"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
)

type CourseController struct {
	CourseService *service.CourseService
}

func NewCourseController(courseService *service.CourseService) *CourseController {
	return &CourseController{CourseService: courseService}
}

// CreateCourse godoc
// @Summary 创建课程
// @Description 根据主题（和可选的单元标题）由模型起草课程大纲，章节初始为 idle
// @Tags 课程
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body service.CreateCourseRequest true "课程信息"
// @Success 201 {object} util.Response{data=model.Course} "创建成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Router /api/courses [post]
func (c *CourseController) CreateCourse(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.CreateCourseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	course, err := c.CourseService.CreateCourse(ctx.Request.Context(), claims.UserID, &req)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Created(ctx, course)
}

// GetCourse godoc
// @Summary 课程详情
// @Description 返回课程及其全部单元、章节（含每章生成状态）
// @Tags 课程
// @Produce json
// @Param   id path string true "课程ID"
// @Success 200 {object} util.Response{data=model.Course}
// @Failure 403 {object} util.Response "无权访问"
// @Failure 404 {object} util.Response "课程不存在"
// @Router /api/courses/{id} [get]
func (c *CourseController) GetCourse(ctx *gin.Context) {
	var userID uint
	if claims := util.GetUserFromContext(ctx); claims != nil {
		userID = claims.UserID
	}

	course, err := c.CourseService.GetCourse(ctx.Param("id"), userID)
	if err != nil {
		respondCourseError(ctx, err)
		return
	}

	util.Success(ctx, course)
}

// ListCourses godoc
// @Summary 公开课程列表
// @Tags 课程
// @Produce json
// @Param   page query int false "页码" default(1)
// @Param   limit query int false "每页数量" default(10)
// @Success 200 {object} util.Response
// @Router /api/courses [get]
func (c *CourseController) ListCourses(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "10"))

	courses, total, err := c.CourseService.ListPublic(page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{
		"courses": courses,
		"total":   total,
		"page":    page,
		"limit":   limit,
	})
}

// UpdateCourse godoc
// @Summary 更新课程元信息
// @Description 仅课程所有者可更新，生成中禁止修改
// @Tags 课程
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "课程ID"
// @Param   body body service.UpdateCourseRequest true "更新字段"
// @Success 200 {object} util.Response{data=model.Course}
// @Failure 409 {object} util.Response "课程生成中"
// @Router /api/courses/{id} [put]
func (c *CourseController) UpdateCourse(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.UpdateCourseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	course, err := c.CourseService.UpdateCourse(ctx.Param("id"), claims.UserID, &req)
	if err != nil {
		respondCourseError(ctx, err)
		return
	}

	util.Success(ctx, course)
}

// PublishCourse godoc
// @Summary 发布课程
// @Description 把课程设为公开，进入课程大厅
// @Tags 课程
// @Produce json
// @Security BearerAuth
// @Param   id path string true "课程ID"
// @Success 200 {object} util.Response{data=model.Course}
// @Router /api/courses/{id}/publish [post]
func (c *CourseController) PublishCourse(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	course, err := c.CourseService.Publish(ctx.Param("id"), claims.UserID)
	if err != nil {
		respondCourseError(ctx, err)
		return
	}

	util.Success(ctx, course)
}

// DeleteCourse godoc
// @Summary 删除课程
// @Tags 课程
// @Produce json
// @Security BearerAuth
// @Param   id path string true "课程ID"
// @Success 200 {object} util.Response
// @Router /api/courses/{id} [delete]
func (c *CourseController) DeleteCourse(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	if err := c.CourseService.DeleteCourse(ctx.Param("id"), claims.UserID); err != nil {
		respondCourseError(ctx, err)
		return
	}

	util.Success(ctx, nil)
}

// EnrollCourse godoc
// @Summary 加入课程
// @Description 把公开课程加入我的课程列表
// @Tags 课程
// @Produce json
// @Security BearerAuth
// @Param   id path string true "课程ID"
// @Success 200 {object} util.Response
// @Router /api/courses/{id}/enroll [post]
func (c *CourseController) EnrollCourse(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	if err := c.CourseService.Enroll(claims.UserID, ctx.Param("id")); err != nil {
		respondCourseError(ctx, err)
		return
	}

	util.Success(ctx, nil)
}

// MyCourses godoc
// @Summary 我的课程
// @Tags 课程
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /api/user/courses [get]
func (c *CourseController) MyCourses(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	courses, err := c.CourseService.ListUserCourses(claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"courses": courses})
}

// RecordChapterView godoc
// @Summary 记录章节浏览
// @Tags 课程
// @Produce json
// @Param   id path string true "课程ID"
// @Param   chapterId path string true "章节ID"
// @Success 200 {object} util.Response
// @Router /api/courses/{id}/chapters/{chapterId}/view [post]
func (c *CourseController) RecordChapterView(ctx *gin.Context) {
	if err := c.CourseService.RecordChapterView(ctx.Param("chapterId")); err != nil {
		respondCourseError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// respondCourseError 把 service 层哨兵错误映射到 HTTP 状态
func respondCourseError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrCourseNotFound), errors.Is(err, util.ErrChapterNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrPermissionDenied):
		util.Forbidden(ctx)
	case errors.Is(err, util.ErrCourseGenerating):
		util.Error(ctx, 409, "课程正在生成中，请稍后再试")
	default:
		util.LogInternalError(ctx, err)
	}
}
