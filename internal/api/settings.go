package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ivar-voice-assistant/backend/internal/models"
	"ivar-voice-assistant/backend/internal/provider"
	"ivar-voice-assistant/backend/internal/session"
	"ivar-voice-assistant/backend/internal/store"
	"ivar-voice-assistant/backend/pkg/logger"
	"ivar-voice-assistant/backend/pkg/secrets"
)

// SettingsController handles provider settings and user preferences.
// Saving settings rebuilds the response provider for subsequent turns.
type SettingsController struct {
	store        *store.Store
	sessions     *session.Manager
	providerOpts []provider.Option

	// ApplyPreferences, when set, pushes saved preferences into the
	// voice pipeline
	ApplyPreferences func(models.UserPreferences)
}

// NewSettingsController creates a new settings controller
func NewSettingsController(st *store.Store, sessions *session.Manager, providerOpts ...provider.Option) *SettingsController {
	return &SettingsController{
		store:        st,
		sessions:     sessions,
		providerOpts: providerOpts,
	}
}

// GetSettings returns the saved provider settings
func (ctl *SettingsController) GetSettings(c *gin.Context) {
	settings, err := ctl.store.LoadSettings(c.Request.Context())
	if err != nil {
		logger.FromContext(c).LogError(err, "failed to load settings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load settings"})
		return
	}
	c.JSON(http.StatusOK, settings)
}

// UpdateSettings validates, persists and applies new provider settings.
// A missing API key for a remote provider is resolved from the secrets
// manager before validation.
func (ctl *SettingsController) UpdateSettings(c *gin.Context) {
	var req models.ProviderSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid settings payload"})
		return
	}

	if req.APIKey == "" && req.Provider != "" && req.Provider != models.ProviderLocal {
		req.APIKey = secrets.GetSecretWithDefault(c.Request.Context(), req.Provider+"-api-key", "")
	}

	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	prov, err := provider.New(req, ctl.providerOpts...)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := ctl.store.SaveSettings(c.Request.Context(), req); err != nil {
		logger.FromContext(c).LogError(err, "failed to save settings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save settings"})
		return
	}

	ctl.sessions.SetProvider(prov)
	logger.FromContext(c).Info("provider settings updated", "provider", req.Provider)

	c.JSON(http.StatusOK, req)
}

// GetPreferences returns the saved user preferences
func (ctl *SettingsController) GetPreferences(c *gin.Context) {
	prefs, err := ctl.store.LoadPreferences(c.Request.Context())
	if err != nil {
		logger.FromContext(c).LogError(err, "failed to load preferences")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load preferences"})
		return
	}
	c.JSON(http.StatusOK, prefs)
}

// UpdatePreferences persists user preferences and applies the voice ones
func (ctl *SettingsController) UpdatePreferences(c *gin.Context) {
	var req models.UserPreferences
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid preferences payload"})
		return
	}

	if err := ctl.store.SavePreferences(c.Request.Context(), req); err != nil {
		logger.FromContext(c).LogError(err, "failed to save preferences")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save preferences"})
		return
	}

	if ctl.ApplyPreferences != nil {
		ctl.ApplyPreferences(req)
	}

	c.JSON(http.StatusOK, req)
}

// RegisterRoutes registers settings and preferences routes
func (ctl *SettingsController) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/settings", ctl.GetSettings)
	router.PUT("/settings", ctl.UpdateSettings)
	router.GET("/preferences", ctl.GetPreferences)
	router.PUT("/preferences", ctl.UpdatePreferences)
}
