package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SAP-F-2025/property-import-service/internal/services"
	"github.com/SAP-F-2025/property-import-service/internal/utils"
	"github.com/SAP-F-2025/property-import-service/internal/validator"
)

type HandlerManager struct {
	importHandler *ImportHandler
}

func NewHandlerManager(
	importService services.ImportService,
	validator *validator.Validator,
	maxUploadBytes int64,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		importHandler: NewImportHandler(importService, validator, maxUploadBytes, logger),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		imports := v1.Group("/imports")
		{
			imports.POST("/upload", hm.importHandler.UploadFile)

			imports.GET("/templates", hm.importHandler.ListTemplates)
			imports.GET("/templates/:type/download", hm.importHandler.DownloadTemplate)

			imports.GET("/jobs", hm.importHandler.ListJobs)
			imports.GET("/jobs/:id", hm.importHandler.GetJob)
			imports.POST("/jobs/:id/confirm", hm.importHandler.ConfirmJob)
			imports.POST("/jobs/:id/cancel", hm.importHandler.CancelJob)
		}
	}
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "property-import-service",
	})
}
