package controller

import (
	"course_gen_backend/internal/service"
	"course_gen_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// YouTubeStatusController 凭证池运维接口，仅管理员可用
type YouTubeStatusController struct {
	Keys *service.YouTubeKeyManager
}

func NewYouTubeStatusController(keys *service.YouTubeKeyManager) *YouTubeStatusController {
	return &YouTubeStatusController{Keys: keys}
}

// Status godoc
// @Summary 凭证池状态
// @Description 返回每个凭证的脱敏状态（active / quota_exceeded / error）
// @Tags 运维
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /api/youtube/status [get]
func (c *YouTubeStatusController) Status(ctx *gin.Context) {
	util.Success(ctx, gin.H{
		"keys":      c.Keys.KeyStatuses(),
		"hasActive": c.Keys.HasActiveKeys(),
	})
}

type resetKeysRequest struct {
	// Index 为空时重置全部凭证
	Index *int `json:"index"`
}

// ResetKeys godoc
// @Summary 重置凭证状态
// @Description 把指定凭证（或全部凭证）恢复为 active，用于配额窗口刷新后手动恢复
// @Tags 运维
// @Accept  json
// @Produce json
// @Security BearerAuth
// @Param   body body resetKeysRequest false "凭证序号，省略则重置全部"
// @Success 200 {object} util.Response
// @Router /api/youtube/keys/reset [post]
func (c *YouTubeStatusController) ResetKeys(ctx *gin.Context) {
	var req resetKeysRequest
	if err := ctx.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		util.BadRequest(ctx, err.Error())
		return
	}

	if req.Index != nil {
		if err := c.Keys.ResetKey(*req.Index); err != nil {
			util.BadRequest(ctx, err.Error())
			return
		}
	} else {
		c.Keys.ResetAllKeys()
	}

	util.Success(ctx, gin.H{"keys": c.Keys.KeyStatuses()})
}
