package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ivar-voice-assistant/backend/internal/session"
	"ivar-voice-assistant/backend/pkg/logger"
)

// ChatController handles the single-turn relay endpoint. Requests without
// a chat id land in a server-managed default conversation.
type ChatController struct {
	sessions      *session.Manager
	defaultChatID string
}

// NewChatController creates a new chat controller
func NewChatController(sessions *session.Manager, defaultChatID string) *ChatController {
	return &ChatController{
		sessions:      sessions,
		defaultChatID: defaultChatID,
	}
}

// ChatRequest is the relay request body
type ChatRequest struct {
	Message string `json:"message"`
	ChatID  string `json:"chatId,omitempty"`
}

// ChatResponse is the relay response body
type ChatResponse struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Chat accepts a user message and returns the assistant's reply
func (ctl *ChatController) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message is required"})
		return
	}

	chatID := req.ChatID
	if chatID == "" {
		chatID = ctl.defaultChatID
	}

	sess, err := ctl.sessions.Get(c.Request.Context(), chatID)
	if err != nil {
		logger.FromContext(c).LogError(err, "failed to resolve session", "chat_id", chatID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load the conversation"})
		return
	}

	reply, err := sess.Submit(c.Request.Context(), req.Message)
	if err != nil {
		switch err {
		case session.ErrEmptyInput:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Message is required"})
		case session.ErrBusy:
			c.JSON(http.StatusConflict, gin.H{"error": "A reply is already being generated for this chat"})
		default:
			logger.FromContext(c).LogError(err, "chat turn failed", "chat_id", chatID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate response"})
		}
		return
	}

	c.JSON(http.StatusOK, ChatResponse{
		Message:   reply.Text,
		Timestamp: reply.Timestamp,
	})
}

// RegisterRoutes registers the relay route
func (ctl *ChatController) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/chat", ctl.Chat)
}
