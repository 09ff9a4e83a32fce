package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ivar-voice-assistant/backend/internal/models"
	"ivar-voice-assistant/backend/internal/session"
	"ivar-voice-assistant/backend/internal/voice"
	"ivar-voice-assistant/backend/pkg/logger"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 32 * 1024 // 32KB, text frames only
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
}

// Message is the envelope for every frame in both directions
type Message struct {
	Type    string      `json:"type"`
	Content interface{} `json:"content"`
}

// Client is one connected websocket peer
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
	Hub  *Hub
	log  *logger.Logger

	// voice capture state, touched only from ReadPump and recognizer
	// callbacks
	voiceMu     sync.Mutex
	recognizer  *voice.Recognizer
	voiceEngine *voice.StreamEngine

	// sendMu guards Send against writes after close. Recognizer callbacks
	// can outlive the connection.
	sendMu     sync.Mutex
	sendClosed bool
}

// closeSend closes the send channel exactly once; later sends are dropped
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.Send)
}

// trySend queues a frame unless the client is gone or its buffer is full
func (c *Client) trySend(payload []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return false
	}
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

// Hub fans session and voice events out to connected clients and accepts
// chat submissions over the socket.
type Hub struct {
	clients     map[*Client]bool
	broadcast   chan []byte
	register    chan *Client
	unregister  chan *Client
	sessions    *session.Manager
	transcriber voice.Transcriber
	log         *logger.Logger
	mu          sync.Mutex
}

func NewHub(sessions *session.Manager, log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		sessions:   sessions,
		log:        log.WithComponent("ws"),
	}
}

// SetTranscriber enables voice capture over the socket. Without one,
// voice frames are rejected.
func (h *Hub) SetTranscriber(t voice.Transcriber) {
	h.transcriber = t
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Info("client registered", "client_id", client.ID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closeSend()
				h.log.Info("client unregistered", "client_id", client.ID)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.trySend(message) {
					client.closeSend()
					delete(h.clients, client)
					h.log.Warn("client removed due to blocked channel", "client_id", client.ID)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ActiveConnections returns the number of connected clients
func (h *Hub) ActiveConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends an event frame to every connected client
func (h *Hub) Broadcast(messageType string, content interface{}) {
	payload, err := json.Marshal(Message{Type: messageType, Content: content})
	if err != nil {
		h.log.LogError(err, "failed to marshal broadcast message", "type", messageType)
		return
	}
	h.broadcast <- payload
}

// MessageAppended implements session.Notifier
func (h *Hub) MessageAppended(chatID string, msg models.Message) {
	h.Broadcast("message", map[string]interface{}{
		"chat_id": chatID,
		"message": msg,
	})
}

// StateChanged implements session.Notifier
func (h *Hub) StateChanged(chatID string, awaitingReply bool) {
	h.Broadcast("state", map[string]interface{}{
		"chat_id":        chatID,
		"awaiting_reply": awaitingReply,
	})
}

// SpeakingChanged publishes speech playback transitions
func (h *Hub) SpeakingChanged(active bool) {
	h.Broadcast("speaking", map[string]interface{}{"active": active})
}

// ListeningChanged publishes recognition transitions
func (h *Hub) ListeningChanged(active bool) {
	h.Broadcast("listening", map[string]interface{}{"active": active})
}

func (c *Client) ReadPump() {
	defer func() {
		c.stopVoiceCapture()
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, messageData, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.LogError(err, "websocket read failed")
			}
			break
		}

		var message Message
		if err := json.Unmarshal(messageData, &message); err != nil {
			c.log.LogError(err, "failed to unmarshal client message")
			continue
		}

		// Voice frames are ordered; handle them on the read loop
		if strings.HasPrefix(message.Type, "voice_") {
			c.handleVoiceMessage(message)
			continue
		}

		go c.handleMessage(message)
	}
}

func (c *Client) handleMessage(message Message) {
	switch message.Type {
	case "chat":
		c.handleChatMessage(message)
	case "new_chat":
		sess := c.Hub.sessions.NewChat(context.Background())
		c.sendMessage("chat_created", map[string]interface{}{
			"chat_id":  sess.ChatID(),
			"messages": sess.Messages(),
		})
	case "ping":
		c.sendMessage("pong", nil)
	default:
		c.log.Warn("unknown message type", "type", message.Type)
	}
}

func (c *Client) handleChatMessage(message Message) {
	var chatContent struct {
		ChatID string `json:"chat_id"`
		Text   string `json:"text"`
	}

	contentBytes, err := json.Marshal(message.Content)
	if err != nil {
		c.log.LogError(err, "failed to marshal chat content")
		return
	}
	if err := json.Unmarshal(contentBytes, &chatContent); err != nil {
		c.log.LogError(err, "failed to unmarshal chat content")
		return
	}

	sess, err := c.Hub.sessions.Get(context.Background(), chatContent.ChatID)
	if err != nil {
		c.log.LogError(err, "failed to resolve session", "chat_id", chatContent.ChatID)
		c.sendErrorMessage("Failed to load the conversation")
		return
	}

	// The session notifier broadcasts both sides of the turn; only
	// submission failures need a direct reply here.
	if _, err := sess.Submit(context.Background(), chatContent.Text); err != nil {
		switch err {
		case session.ErrEmptyInput:
			c.sendErrorMessage("Message text is required")
		case session.ErrBusy:
			c.sendErrorMessage("A reply is already on the way")
		case session.ErrSuperseded:
			// Dropped on purpose after a chat switch, nothing to report
		default:
			c.sendErrorMessage("Failed to generate a response")
		}
	}
}

// handleVoiceMessage drives the capture session: voice_start opens it,
// voice_data pushes base64 audio chunks, voice_end finalizes and submits
// the transcript as a turn on the named chat.
func (c *Client) handleVoiceMessage(message Message) {
	switch message.Type {
	case "voice_start":
		c.startVoiceCapture(message)
	case "voice_data":
		c.pushVoiceData(message)
	case "voice_end":
		c.voiceMu.Lock()
		recognizer := c.recognizer
		c.voiceMu.Unlock()
		if recognizer != nil {
			recognizer.Stop()
		}
	default:
		c.log.Warn("unknown voice message type", "type", message.Type)
	}
}

func (c *Client) startVoiceCapture(message Message) {
	if c.Hub.transcriber == nil {
		c.sendErrorMessage("Voice capture is not configured")
		return
	}

	// A new capture supersedes the previous one
	c.stopVoiceCapture()

	var content struct {
		ChatID string `json:"chat_id"`
	}
	if data, err := json.Marshal(message.Content); err == nil {
		json.Unmarshal(data, &content)
	}
	chatID := content.ChatID

	engine := voice.NewStreamEngine(c.Hub.transcriber)
	recognizer := voice.NewRecognizer(engine, voice.RecognizerCallbacks{
		OnTranscript: func(transcript string) {
			c.sendMessage("transcript", map[string]string{"text": transcript})
			c.submitTranscript(chatID, transcript)
		},
		OnError: func(errorText string) {
			c.sendErrorMessage(errorText)
		},
		OnStateChange: func(listening bool) {
			c.Hub.ListeningChanged(listening)
		},
	}, c.log)

	if err := recognizer.Start(context.Background()); err != nil {
		c.log.LogError(err, "failed to start voice capture")
		c.sendErrorMessage("Failed to start voice capture")
		return
	}

	c.voiceMu.Lock()
	c.recognizer = recognizer
	c.voiceEngine = engine
	c.voiceMu.Unlock()
}

func (c *Client) pushVoiceData(message Message) {
	c.voiceMu.Lock()
	engine := c.voiceEngine
	c.voiceMu.Unlock()
	if engine == nil {
		return
	}

	var content struct {
		Data string `json:"data"`
	}
	data, err := json.Marshal(message.Content)
	if err != nil {
		return
	}
	if err := json.Unmarshal(data, &content); err != nil {
		c.log.LogError(err, "failed to unmarshal voice data")
		return
	}

	audio, err := base64.StdEncoding.DecodeString(content.Data)
	if err != nil {
		c.log.LogError(err, "failed to decode voice data")
		return
	}
	engine.Push(audio)
}

// submitTranscript feeds the finalized transcript into the session as a
// regular chat turn
func (c *Client) submitTranscript(chatID, transcript string) {
	sess, err := c.Hub.sessions.Get(context.Background(), chatID)
	if err != nil {
		c.log.LogError(err, "failed to resolve session", "chat_id", chatID)
		c.sendErrorMessage("Failed to load the conversation")
		return
	}
	if _, err := sess.Submit(context.Background(), transcript); err != nil && err != session.ErrSuperseded {
		c.sendErrorMessage("Failed to generate a response")
	}
}

// stopVoiceCapture aborts any capture in progress, discarding buffered audio
func (c *Client) stopVoiceCapture() {
	c.voiceMu.Lock()
	engine := c.voiceEngine
	c.recognizer = nil
	c.voiceEngine = nil
	c.voiceMu.Unlock()
	if engine != nil {
		engine.Abort()
	}
}

func (c *Client) sendMessage(messageType string, content interface{}) {
	payload, err := json.Marshal(Message{Type: messageType, Content: content})
	if err != nil {
		c.log.LogError(err, "failed to marshal message", "type", messageType)
		return
	}
	if !c.trySend(payload) {
		c.log.Debug("dropping frame for disconnected client", "type", messageType)
	}
}

func (c *Client) sendErrorMessage(errorText string) {
	c.sendMessage("error", map[string]string{
		"message": errorText,
	})
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			n := len(c.Send)
			for i := 0; i < n; i++ {
				extraMsg := <-c.Send
				if err := c.Conn.WriteMessage(websocket.TextMessage, extraMsg); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades the request and attaches a client to the hub
func ServeWs(hub *Hub, c *gin.Context) {
	clientID := c.Query("clientId")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.log.LogError(err, "failed to upgrade connection")
		return
	}
	conn.EnableWriteCompression(true)

	client := &Client{
		ID:   clientID,
		Conn: conn,
		Send: make(chan []byte, 256),
		Hub:  hub,
		log:  hub.log.WithClientID(clientID),
	}

	client.Hub.register <- client
	hub.log.Info("websocket connection established", "client_id", clientID)

	go client.WritePump()
	go client.ReadPump()
}
