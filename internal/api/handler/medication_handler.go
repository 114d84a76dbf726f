package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/thiagotlz/medcontrol/internal/dto"
	"github.com/thiagotlz/medcontrol/internal/schedule"
	"github.com/thiagotlz/medcontrol/internal/service"
	pkgerrors "github.com/thiagotlz/medcontrol/pkg/errors"
	"github.com/thiagotlz/medcontrol/pkg/response"
)

// MedicationHandler 药品与剂量模块 HTTP 处理器
type MedicationHandler struct {
	medSvc service.MedicationService
}

// NewMedicationHandler 创建 MedicationHandler
func NewMedicationHandler(medSvc service.MedicationService) *MedicationHandler {
	return &MedicationHandler{medSvc: medSvc}
}

// handleMedicationError 统一映射药品模块业务错误
func handleMedicationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrMedicationNotFound):
		response.NotFound(c, 12001, "药品不存在")
	case errors.Is(err, service.ErrDoseNotFound):
		response.NotFound(c, 12002, "剂量记录不存在")
	case errors.Is(err, service.ErrNotOwner):
		response.Forbidden(c, 12003, "无权操作该资源")
	case errors.Is(err, schedule.ErrInvalidSchedule):
		response.BadRequest(c, 12004, err.Error())
	case errors.Is(err, schedule.ErrInvalidBackfill):
		response.BadRequest(c, 12005, err.Error())
	case errors.Is(err, service.ErrBackfillIncomplete):
		response.BadRequest(c, 12005, err.Error())
	case errors.Is(err, service.ErrDoseNotMarkable):
		response.Conflict(c, 12006, "剂量已处理，不可重复标记")
	case errors.Is(err, pkgerrors.ErrStatusConflict):
		response.Conflict(c, 12006, "剂量状态已被其他操作修改，请刷新后重试")
	default:
		response.InternalError(c)
	}
}

// Create 创建药品并生成剂量计划
// POST /api/v1/medications
func (h *MedicationHandler) Create(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.CreateMedicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.medSvc.Create(c.Request.Context(), userID, &req)
	if err != nil {
		handleMedicationError(c, err)
		return
	}

	response.Created(c, result)
}

// List 查询当前用户的药品列表
// GET /api/v1/medications?active=true
func (h *MedicationHandler) List(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	activeOnly := c.Query("active") == "true"

	result, err := h.medSvc.List(c.Request.Context(), userID, activeOnly)
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, result)
}

// Get 查询单个药品
// GET /api/v1/medications/:id
func (h *MedicationHandler) Get(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.medSvc.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		handleMedicationError(c, err)
		return
	}

	response.OK(c, result)
}

// Update 更新药品（规则变更时重建未来计划）
// PUT /api/v1/medications/:id
func (h *MedicationHandler) Update(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.UpdateMedicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.medSvc.Update(c.Request.Context(), userID, c.Param("id"), &req)
	if err != nil {
		handleMedicationError(c, err)
		return
	}

	response.OK(c, result)
}

// Toggle 切换药品启用状态
// PATCH /api/v1/medications/:id/toggle
func (h *MedicationHandler) Toggle(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.medSvc.Toggle(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		handleMedicationError(c, err)
		return
	}

	response.OK(c, result)
}

// Delete 删除药品（剂量与通知日志级联删除）
// DELETE /api/v1/medications/:id
func (h *MedicationHandler) Delete(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.medSvc.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		handleMedicationError(c, err)
		return
	}

	response.OK(c, nil)
}

// ListDoses 查询药品的剂量记录
// GET /api/v1/medications/:id/doses?limit=20
func (h *MedicationHandler) ListDoses(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	result, err := h.medSvc.ListDoses(c.Request.Context(), userID, c.Param("id"), limit)
	if err != nil {
		handleMedicationError(c, err)
		return
	}

	response.OK(c, result)
}

// MarkTaken 标记剂量已服用
// POST /api/v1/doses/:id/taken
func (h *MedicationHandler) MarkTaken(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.medSvc.MarkDoseTaken(c.Request.Context(), userID, c.Param("id")); err != nil {
		handleMedicationError(c, err)
		return
	}

	response.OK(c, nil)
}

// MarkMissed 标记剂量已错过
// POST /api/v1/doses/:id/missed
func (h *MedicationHandler) MarkMissed(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.medSvc.MarkDoseMissed(c.Request.Context(), userID, c.Param("id")); err != nil {
		handleMedicationError(c, err)
		return
	}

	response.OK(c, nil)
}

// Stats 查询服药统计与依从率
// GET /api/v1/medications/stats?period_days=30
func (h *MedicationHandler) Stats(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	periodDays, _ := strconv.Atoi(c.DefaultQuery("period_days", "30"))

	result, err := h.medSvc.Stats(c.Request.Context(), userID, periodDays)
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, result)
}
