package handlers

import "github.com/gin-gonic/gin"

// RegisterImportRoutes mounts the kit import API under rg.
func RegisterImportRoutes(rg *gin.RouterGroup, h *ImportHandler) {
	kits := rg.Group("/kits/import")
	{
		kits.GET("/template", h.GetImportTemplate)
		kits.POST("", h.UploadImport)
		kits.GET("/:sessionId", h.GetImport)
		kits.POST("/:sessionId/commit", h.CommitImport)
		kits.DELETE("/:sessionId", h.CancelImport)
		kits.GET("/:sessionId/report", h.GetImportReport)
		kits.GET("/:sessionId/products", h.GetImportedProducts)
	}
}
