package controller

import (
	"course_gen_backend/internal/repository"
	"course_gen_backend/internal/service"
	"course_gen_backend/internal/util"
	"io"
	"time"

	"github.com/gin-gonic/gin"
)

type GenerationController struct {
	GenerationService *service.GenerationService
	CourseRepo        *repository.CourseRepository
}

func NewGenerationController(generationService *service.GenerationService, courseRepo *repository.CourseRepository) *GenerationController {
	return &GenerationController{GenerationService: generationService, CourseRepo: courseRepo}
}

// GenerateCourse godoc
// @Summary 生成课程内容
// @Description 对课程全部章节并发执行生成管线，所有章节落定后返回汇总结果
// @Tags 生成
// @Produce json
// @Security BearerAuth
// @Param   id path string true "课程ID"
// @Success 200 {object} util.Response{data=service.GenerationResult}
// @Failure 409 {object} util.Response "课程已在生成中"
// @Router /api/courses/{id}/generate [post]
func (c *GenerationController) GenerateCourse(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	result, err := c.GenerationService.GenerateCourse(ctx.Request.Context(), ctx.Param("id"), claims.UserID)
	if err != nil {
		respondCourseError(ctx, err)
		return
	}

	util.Success(ctx, result)
}

// RegenerateChapter godoc
// @Summary 重新生成单个章节
// @Description 只重跑指定章节的生成管线，其余章节不受影响
// @Tags 生成
// @Produce json
// @Security BearerAuth
// @Param   id path string true "课程ID"
// @Param   chapterId path string true "章节ID"
// @Success 200 {object} util.Response{data=service.ChapterResult}
// @Router /api/courses/{id}/chapters/{chapterId}/regenerate [post]
func (c *GenerationController) RegenerateChapter(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	result, err := c.GenerationService.RegenerateChapter(
		ctx.Request.Context(), ctx.Param("id"), ctx.Param("chapterId"), claims.UserID)
	if err != nil {
		respondCourseError(ctx, err)
		return
	}

	util.Success(ctx, result)
}

// StreamEvents godoc
// @Summary 订阅章节进度事件（SSE）
// @Description 以 Server-Sent Events 推送该课程的章节状态变化，直到客户端断开
// @Tags 生成
// @Produce text/event-stream
// @Param   id path string true "课程ID"
// @Param   token query string false "JWT（SSE 无法携带请求头时使用）"
// @Router /api/courses/{id}/events [get]
func (c *GenerationController) StreamEvents(ctx *gin.Context) {
	courseID := ctx.Param("id")

	pubsub := c.CourseRepo.SubscribeEvents(ctx.Request.Context(), courseID)
	defer pubsub.Close()

	ctx.Writer.Header().Set("Content-Type", "text/event-stream")
	ctx.Writer.Header().Set("Cache-Control", "no-cache")
	ctx.Writer.Header().Set("Connection", "keep-alive")
	ctx.Writer.Header().Set("X-Accel-Buffering", "no")

	events := pubsub.Channel()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	ctx.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-events:
			if !ok {
				return false
			}
			ctx.SSEvent("chapter", msg.Payload)
			return true
		case <-heartbeat.C:
			// 保活注释行，防止中间代理掐断空闲连接
			ctx.SSEvent("ping", time.Now().Unix())
			return true
		case <-ctx.Request.Context().Done():
			return false
		}
	})
}
