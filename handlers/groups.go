package handlers

import (
	"net/http"

	"skylark/middleware"
	"skylark/services/chat"
	"skylark/services/group"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GroupHandler serves the group directory and chat of the current account.
type GroupHandler struct {
	Groups *group.Service
	Chat   *chat.Service
}

func NewGroupHandler(groups *group.Service, chatService *chat.Service) *GroupHandler {
	return &GroupHandler{Groups: groups, Chat: chatService}
}

// ListGroupsHandler handles GET /api/groups.
func (h *GroupHandler) ListGroupsHandler(c *gin.Context) {
	account, _ := middleware.AccountFrom(c)
	groups, err := h.Groups.ListForMember(c.Request.Context(), account.ID)
	if err != nil {
		respondError(c, "Failed to list groups", err)
		return
	}
	c.JSON(http.StatusOK, groups)
}

// CreateGroupHandler handles POST /api/groups.
func (h *GroupHandler) CreateGroupHandler(c *gin.Context) {
	account, _ := middleware.AccountFrom(c)
	var req struct {
		Name string `json:"name"`
		Code string `json:"code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	g, err := h.Groups.Create(c.Request.Context(), account.ID, req.Name, req.Code)
	if err != nil {
		respondError(c, "Failed to create group", err)
		return
	}
	getLogger(c).Info("Group created", zap.String("groupId", g.ID), zap.String("code", g.Code))
	c.JSON(http.StatusCreated, g)
}

// JoinGroupHandler handles POST /api/groups/join.
func (h *GroupHandler) JoinGroupHandler(c *gin.Context) {
	account, _ := middleware.AccountFrom(c)
	var req struct {
		Code string `json:"code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	g, err := h.Groups.Join(c.Request.Context(), account.ID, req.Code)
	if err != nil {
		respondError(c, "Failed to join group", err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// SetActiveGroupHandler handles PUT /api/groups/active. Messages of the
// open group are shown instead of alerted. An empty id closes it.
func (h *GroupHandler) SetActiveGroupHandler(c *gin.Context) {
	s, _ := middleware.ShellFrom(c)
	account, _ := middleware.AccountFrom(c)
	var req struct {
		GroupID string `json:"groupId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.GroupID != "" {
		if _, err := h.Groups.GetForMember(c.Request.Context(), account.ID, req.GroupID); err != nil {
			respondError(c, "Failed to open group", err)
			return
		}
	}
	s.SetActiveGroup(req.GroupID)
	c.JSON(http.StatusOK, gin.H{"activeGroup": req.GroupID})
}

// LeaveGroupHandler handles DELETE /api/groups/:id/members/me.
func (h *GroupHandler) LeaveGroupHandler(c *gin.Context) {
	s, _ := middleware.ShellFrom(c)
	account, _ := middleware.AccountFrom(c)
	groupID := c.Param("id")
	if err := h.Groups.Leave(c.Request.Context(), account.ID, groupID); err != nil {
		respondError(c, "Failed to leave group", err)
		return
	}
	if s.ActiveGroup() == groupID {
		s.SetActiveGroup("")
	}
	c.JSON(http.StatusOK, gin.H{"message": "Left group"})
}

// ListMessagesHandler handles GET /api/groups/:id/messages.
func (h *GroupHandler) ListMessagesHandler(c *gin.Context) {
	account, _ := middleware.AccountFrom(c)
	msgs, err := h.Chat.List(c.Request.Context(), account.ID, c.Param("id"))
	if err != nil {
		respondError(c, "Failed to list messages", err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// SendMessageHandler handles POST /api/groups/:id/messages.
func (h *GroupHandler) SendMessageHandler(c *gin.Context) {
	account, _ := middleware.AccountFrom(c)
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	msg, err := h.Chat.Send(c.Request.Context(), account, c.Param("id"), req.Text)
	if err != nil {
		respondError(c, "Failed to send message", err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}
