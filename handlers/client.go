package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"skylark/middleware"
	"skylark/shell"
	"skylark/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultHeartbeat = 25 * time.Second

// ClientHandler issues client identities and serves the notice stream.
type ClientHandler struct {
	Tokens    *utils.ClientTokens
	Heartbeat time.Duration
}

func NewClientHandler(tokens *utils.ClientTokens) *ClientHandler {
	return &ClientHandler{Tokens: tokens, Heartbeat: defaultHeartbeat}
}

// CreateClientHandler handles POST /api/clients.
func (h *ClientHandler) CreateClientHandler(c *gin.Context) {
	logger := getLogger(c)
	clientID := uuid.New().String()
	token, err := h.Tokens.Generate(clientID)
	if err != nil {
		logger.Error("Failed to sign client token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": retryMessage})
		return
	}
	logger.Info("Client registered", zap.String("clientId", clientID))
	c.JSON(http.StatusCreated, gin.H{"clientId": clientID, "token": token})
}

// UpdatePushTokenHandler handles PUT /api/clients/push-token. An empty
// token turns push delivery off for this client.
func (h *ClientHandler) UpdatePushTokenHandler(c *gin.Context) {
	s, ok := middleware.ShellFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Insufficient authorization"})
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.SetPushToken(req.Token)
	c.JSON(http.StatusOK, gin.H{"message": "Push token updated"})
}

// lastNoticeID reads the resume point from Last-Event-ID or ?after=.
func lastNoticeID(c *gin.Context) uint64 {
	raw := c.GetHeader("Last-Event-ID")
	if raw == "" {
		raw = c.Query("after")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// EventsHandler handles GET /api/clients/events. Retained notices after the
// resume point are sent first, then live ones until the client goes away.
func (h *ClientHandler) EventsHandler(c *gin.Context) {
	s, ok := middleware.ShellFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Insufficient authorization"})
		return
	}

	notices, unsubscribe := s.Subscribe()
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	last := lastNoticeID(c)
	send := func(n shell.Notice) {
		if n.ID <= last {
			return
		}
		last = n.ID
		fmt.Fprintf(c.Writer, "id: %d\n", n.ID)
		c.SSEvent(string(n.Kind), n)
		c.Writer.Flush()
	}
	for _, n := range s.Notices(last) {
		send(n)
	}
	c.Writer.Flush()

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case n, ok := <-notices:
			if !ok {
				return
			}
			send(n)
			s.Touch()
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			c.Writer.Flush()
			s.Touch()
		}
	}
}
