package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/thiagotlz/medcontrol/internal/dto"
	"github.com/thiagotlz/medcontrol/internal/service"
	"github.com/thiagotlz/medcontrol/pkg/response"
)

// SettingsHandler 通知配置模块 HTTP 处理器
type SettingsHandler struct {
	settingsSvc service.SettingsService
}

// NewSettingsHandler 创建 SettingsHandler
func NewSettingsHandler(settingsSvc service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settingsSvc: settingsSvc}
}

// Get 查询通知配置（密码仅返回掩码标记）
// GET /api/v1/settings
func (h *SettingsHandler) Get(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.settingsSvc.Get(c.Request.Context(), userID)
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, result)
}

// Update 更新通知配置
// PUT /api/v1/settings
func (h *SettingsHandler) Update(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.settingsSvc.Update(c.Request.Context(), userID, &req)
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, result)
}

// Status 查询通知配置完备性
// GET /api/v1/settings/status
func (h *SettingsHandler) Status(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.settingsSvc.Status(c.Request.Context(), userID)
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, result)
}

// SendTest 发送测试邮件
// POST /api/v1/settings/test
func (h *SettingsHandler) SendTest(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.settingsSvc.SendTest(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrSettingsIncomplete) {
			response.BadRequest(c, 13001, "通知配置不完整，请先填写推送邮箱与 SMTP 凭据")
			return
		}
		response.InternalError(c)
		return
	}

	response.OK(c, result)
}
