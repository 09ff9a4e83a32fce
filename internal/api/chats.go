package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ivar-voice-assistant/backend/internal/session"
	"ivar-voice-assistant/backend/internal/store"
	"ivar-voice-assistant/backend/pkg/logger"
)

// ChatsController handles conversation management endpoints
type ChatsController struct {
	store    *store.Store
	sessions *session.Manager
}

// NewChatsController creates a new chats controller
func NewChatsController(st *store.Store, sessions *session.Manager) *ChatsController {
	return &ChatsController{store: st, sessions: sessions}
}

// CreateChat starts a new conversation seeded with the greeting
func (ctl *ChatsController) CreateChat(c *gin.Context) {
	sess := ctl.sessions.NewChat(c.Request.Context())
	c.JSON(http.StatusCreated, gin.H{
		"id":       sess.ChatID(),
		"messages": sess.Messages(),
	})
}

// ListChats returns the chat index, newest first
func (ctl *ChatsController) ListChats(c *gin.Context) {
	chats, err := ctl.store.ListChats(c.Request.Context())
	if err != nil {
		logger.FromContext(c).LogError(err, "failed to list chats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list chats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// GetChat returns one conversation's full message log
func (ctl *ChatsController) GetChat(c *gin.Context) {
	chatID := c.Param("chatId")

	conv, err := ctl.store.LoadConversation(c.Request.Context(), chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Chat not found"})
			return
		}
		logger.FromContext(c).LogError(err, "failed to load chat", "chat_id", chatID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load chat"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":       conv.ChatID,
		"title":    conv.Title(),
		"messages": conv.Messages,
	})
}

// DeleteChat removes a conversation and its index entry
func (ctl *ChatsController) DeleteChat(c *gin.Context) {
	chatID := c.Param("chatId")

	if err := ctl.store.DeleteConversation(c.Request.Context(), chatID); err != nil {
		logger.FromContext(c).LogError(err, "failed to delete chat", "chat_id", chatID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete chat"})
		return
	}
	ctl.sessions.Drop(chatID)

	c.JSON(http.StatusOK, gin.H{"deleted": chatID})
}

// SubmitMessageRequest is the body for posting a message into a chat
type SubmitMessageRequest struct {
	Text string `json:"text"`
}

// SubmitMessage runs one conversation turn in the addressed chat
func (ctl *ChatsController) SubmitMessage(c *gin.Context) {
	chatID := c.Param("chatId")

	var req SubmitMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message text is required"})
		return
	}

	sess, err := ctl.sessions.Get(c.Request.Context(), chatID)
	if err != nil {
		logger.FromContext(c).LogError(err, "failed to resolve session", "chat_id", chatID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load the conversation"})
		return
	}

	reply, err := sess.Submit(c.Request.Context(), req.Text)
	if err != nil {
		switch err {
		case session.ErrEmptyInput:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Message text is required"})
		case session.ErrBusy:
			c.JSON(http.StatusConflict, gin.H{"error": "A reply is already being generated for this chat"})
		default:
			logger.FromContext(c).LogError(err, "chat turn failed", "chat_id", chatID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate response"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": reply})
}

// RegisterRoutes registers conversation management routes
func (ctl *ChatsController) RegisterRoutes(router *gin.RouterGroup) {
	chats := router.Group("/chats")
	{
		chats.POST("", ctl.CreateChat)
		chats.GET("", ctl.ListChats)
		chats.GET("/:chatId", ctl.GetChat)
		chats.DELETE("/:chatId", ctl.DeleteChat)
		chats.POST("/:chatId/messages", ctl.SubmitMessage)
	}
}
