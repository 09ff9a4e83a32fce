package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ivar-voice-assistant/backend/internal/session"
	"ivar-voice-assistant/backend/internal/voice"
	"ivar-voice-assistant/backend/pkg/logger"
)

// VoiceController exposes the speech pipeline over HTTP: audio in,
// transcript out, and text in, synthesized audio out. Both endpoints
// return 501 when the corresponding engine is not configured.
type VoiceController struct {
	transcriber voice.Transcriber
	synthesis   voice.SynthesisEngine
	sessions    *session.Manager
}

// NewVoiceController creates a new voice controller
func NewVoiceController(transcriber voice.Transcriber, synthesis voice.SynthesisEngine, sessions *session.Manager) *VoiceController {
	return &VoiceController{
		transcriber: transcriber,
		synthesis:   synthesis,
		sessions:    sessions,
	}
}

// Transcribe converts an uploaded audio clip to text. With a chatId query
// parameter the transcript is also submitted as a conversation turn.
func (ctl *VoiceController) Transcribe(c *gin.Context) {
	if ctl.transcriber == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Speech recognition is not configured"})
		return
	}

	audio, err := readAudio(c)
	if err != nil || len(audio) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Audio data is required"})
		return
	}

	text, err := ctl.transcriber.Transcribe(c.Request.Context(), audio)
	if err != nil {
		logger.FromContext(c).LogError(err, "transcription failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process speech"})
		return
	}

	if chatID := c.Query("chatId"); chatID != "" && strings.TrimSpace(text) != "" {
		sess, err := ctl.sessions.Get(c.Request.Context(), chatID)
		if err != nil {
			logger.FromContext(c).LogError(err, "failed to resolve session", "chat_id", chatID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load the conversation"})
			return
		}
		reply, err := sess.Submit(c.Request.Context(), text)
		if err != nil {
			logger.FromContext(c).LogError(err, "voice turn failed", "chat_id", chatID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate response"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"transcript": text, "message": reply})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transcript": text})
}

// SpeakRequest is the body for speech synthesis
type SpeakRequest struct {
	Text string `json:"text"`
}

// Speak synthesizes the given text and returns the audio bytes
func (ctl *VoiceController) Speak(c *gin.Context) {
	if ctl.synthesis == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Speech synthesis is not configured"})
		return
	}

	var req SpeakRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Text is required"})
		return
	}

	audio, err := ctl.synthesis.Synthesize(c.Request.Context(), req.Text)
	if err != nil {
		logger.FromContext(c).LogError(err, "speech synthesis failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to synthesize speech"})
		return
	}

	c.Data(http.StatusOK, "audio/mpeg", audio)
}

// readAudio accepts either a multipart "audio" file or a raw body
func readAudio(c *gin.Context) ([]byte, error) {
	if file, err := c.FormFile("audio"); err == nil {
		f, err := file.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(f)
	}
	return io.ReadAll(c.Request.Body)
}

// RegisterRoutes registers voice pipeline routes
func (ctl *VoiceController) RegisterRoutes(router *gin.RouterGroup) {
	voiceGroup := router.Group("/voice")
	{
		voiceGroup.POST("/transcribe", ctl.Transcribe)
		voiceGroup.POST("/speak", ctl.Speak)
	}
}
