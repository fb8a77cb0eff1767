package handlers

import (
	"net/http"

	"skylark/middleware"
	"skylark/services/admin"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminHandler encapsulates elevated admin-level operations.
type AdminHandler struct {
	AdminService admin.AdminService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(as admin.AdminService) *AdminHandler {
	return &AdminHandler{AdminService: as}
}

// GetAllUsersHandler returns all accounts, newest first, optionally
// filtered by ?search=.
func (ah *AdminHandler) GetAllUsersHandler(c *gin.Context) {
	users, err := ah.AdminService.ListAccounts(c.Request.Context(), c.Query("search"))
	if err != nil {
		respondError(c, "Failed to fetch all users", err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// DeleteUserHandler handles DELETE /api/admin/users/:id.
func (ah *AdminHandler) DeleteUserHandler(c *gin.Context) {
	id := c.Param("id")
	if err := ah.AdminService.DeleteAccount(c.Request.Context(), id); err != nil {
		respondError(c, "Failed to delete user", err)
		return
	}
	getLogger(c).Info("User deleted by admin", zap.String("accountId", id))
	c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
}

// SetAdminHandler handles PUT /api/admin/users/:id/admin.
func (ah *AdminHandler) SetAdminHandler(c *gin.Context) {
	var req struct {
		IsAdmin *bool `json:"isAdmin" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := ah.AdminService.SetAdmin(c.Request.Context(), c.Param("id"), *req.IsAdmin); err != nil {
		respondError(c, "Failed to update admin flag", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Admin flag updated"})
}

// RevokeUserDeviceHandler handles DELETE /api/admin/users/:id/devices/:deviceId.
func (ah *AdminHandler) RevokeUserDeviceHandler(c *gin.Context) {
	if err := ah.AdminService.RevokeDevice(c.Request.Context(), c.Param("id"), c.Param("deviceId")); err != nil {
		respondError(c, "Failed to revoke user device", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Device revoked"})
}

// ImpersonateHandler handles POST /api/admin/users/:id/impersonate.
func (ah *AdminHandler) ImpersonateHandler(c *gin.Context) {
	s, _ := middleware.ShellFrom(c)
	target, err := s.Session().BeginImpersonation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to start impersonation", err)
		return
	}
	getLogger(c).Info("Impersonation started", zap.String("targetId", target.ID))
	c.JSON(http.StatusOK, gin.H{"account": target, "impersonating": true})
}

// EndImpersonationHandler handles POST /api/admin/impersonation/end.
func (ah *AdminHandler) EndImpersonationHandler(c *gin.Context) {
	s, _ := middleware.ShellFrom(c)
	if err := s.Session().EndImpersonation(c.Request.Context()); err != nil {
		respondError(c, "Failed to end impersonation", err)
		return
	}
	view := s.Current()
	c.JSON(http.StatusOK, gin.H{"account": view.Account, "impersonating": view.Impersonating})
}

// GetAllGroupsHandler handles GET /api/admin/groups.
func (ah *AdminHandler) GetAllGroupsHandler(c *gin.Context) {
	groups, err := ah.AdminService.ListGroups(c.Request.Context())
	if err != nil {
		respondError(c, "Failed to fetch all groups", err)
		return
	}
	c.JSON(http.StatusOK, groups)
}

// DeleteGroupHandler handles DELETE /api/admin/groups/:id.
func (ah *AdminHandler) DeleteGroupHandler(c *gin.Context) {
	if err := ah.AdminService.DeleteGroup(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, "Failed to delete group", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Group deleted"})
}

// RemoveGroupMemberHandler handles DELETE /api/admin/groups/:id/members/:memberId.
func (ah *AdminHandler) RemoveGroupMemberHandler(c *gin.Context) {
	if err := ah.AdminService.RemoveGroupMember(c.Request.Context(), c.Param("id"), c.Param("memberId")); err != nil {
		respondError(c, "Failed to remove group member", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Member removed"})
}
