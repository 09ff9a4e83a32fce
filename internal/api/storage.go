package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"ivar-voice-assistant/backend/internal/store"
	"ivar-voice-assistant/backend/pkg/logger"
)

// StorageController exposes storage maintenance endpoints: usage
// reporting, full export/import and clearing assistant data.
type StorageController struct {
	store *store.Store
}

// NewStorageController creates a new storage controller
func NewStorageController(st *store.Store) *StorageController {
	return &StorageController{store: st}
}

// Usage reports assistant storage consumption by category
func (ctl *StorageController) Usage(c *gin.Context) {
	report, err := ctl.store.Usage(c.Request.Context())
	if err != nil {
		logger.FromContext(c).LogError(err, "failed to compute storage usage")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute storage usage"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// Export dumps every assistant record as a JSON document
func (ctl *StorageController) Export(c *gin.Context) {
	data, err := ctl.store.ExportAll(c.Request.Context())
	if err != nil {
		logger.FromContext(c).LogError(err, "failed to export storage")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export data"})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="ivar-export.json"`)
	c.Data(http.StatusOK, "application/json", data)
}

// Import restores assistant records from an export document. Keys outside
// the assistant namespace are ignored.
func (ctl *StorageController) Import(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil || len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Export document is required"})
		return
	}

	if err := ctl.store.ImportAll(c.Request.Context(), data); err != nil {
		logger.FromContext(c).LogError(err, "failed to import storage")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid export document"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"imported": true})
}

// Clear removes every assistant record
func (ctl *StorageController) Clear(c *gin.Context) {
	count, err := ctl.store.ClearAll(c.Request.Context())
	if err != nil {
		logger.FromContext(c).LogError(err, "failed to clear storage")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear data"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": count})
}

// RegisterRoutes registers storage maintenance routes
func (ctl *StorageController) RegisterRoutes(router *gin.RouterGroup) {
	storage := router.Group("/storage")
	{
		storage.GET("/usage", ctl.Usage)
		storage.GET("/export", ctl.Export)
		storage.POST("/import", ctl.Import)
		storage.POST("/clear", ctl.Clear)
	}
}
