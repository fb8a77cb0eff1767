package routes

import (
	"time"

	"skylark/handlers"
	"skylark/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterClientRoutes registers client identity and notice stream endpoints.
func RegisterClientRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.POST("/api/clients", hb.ClientHandler.CreateClientHandler)

	api := r.Group("/api/clients")
	{
		api.Use(middleware.ClientAuthMiddleware(hb.Tokens, hb.Registry))
		api.PUT("/push-token", hb.ClientHandler.UpdatePushTokenHandler)
		api.GET("/events", hb.ClientHandler.EventsHandler)
	}
}

// RegisterAuthRoutes registers the session protocol endpoints.
func RegisterAuthRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	clientAuth := middleware.ClientAuthMiddleware(hb.Tokens, hb.Registry)

	api := r.Group("/api/auth")
	{
		api.Use(clientAuth)
		api.POST("/register", hb.AuthHandler.RegisterHandler)
		api.POST("/login", hb.AuthHandler.LoginHandler)
		api.POST("/logout", hb.AuthHandler.LogoutHandler)
	}
	r.GET("/api/session", clientAuth, hb.AuthHandler.SessionHandler)
}

// RegisterDeviceRoutes registers device history endpoints.
func RegisterDeviceRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/devices")
	{
		api.Use(middleware.ClientAuthMiddleware(hb.Tokens, hb.Registry), middleware.RequireSession())
		api.GET("", hb.DeviceHandler.ListDevicesHandler)
		api.DELETE("/:id", hb.DeviceHandler.RevokeDeviceHandler)
		api.POST("/revoke-others", hb.DeviceHandler.RevokeOtherDevicesHandler)
	}
}

// RegisterGroupRoutes registers group directory and chat endpoints.
func RegisterGroupRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/groups")
	{
		api.Use(middleware.ClientAuthMiddleware(hb.Tokens, hb.Registry), middleware.RequireSession())
		api.GET("", hb.GroupHandler.ListGroupsHandler)
		api.POST("", hb.GroupHandler.CreateGroupHandler)
		api.POST("/join", hb.GroupHandler.JoinGroupHandler)
		api.PUT("/active", hb.GroupHandler.SetActiveGroupHandler)
		api.DELETE("/:id/members/me", hb.GroupHandler.LeaveGroupHandler)
		api.GET("/:id/messages", hb.GroupHandler.ListMessagesHandler)
		api.POST("/:id/messages", hb.GroupHandler.SendMessageHandler)
	}
}

// RegisterAdminRoutes sets up endpoints for admin operations.
func RegisterAdminRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	session := []gin.HandlerFunc{
		middleware.ClientAuthMiddleware(hb.Tokens, hb.Registry),
		middleware.RequireSession(),
	}

	// Ending an impersonation runs as the impersonated account.
	r.POST("/api/admin/impersonation/end", append(session, hb.AdminHandler.EndImpersonationHandler)...)

	adminGroup := r.Group("/api/admin")
	{
		adminGroup.Use(session...)
		adminGroup.Use(middleware.RequireAdmin())
		adminGroup.GET("/users", hb.AdminHandler.GetAllUsersHandler)
		adminGroup.DELETE("/users/:id", hb.AdminHandler.DeleteUserHandler)
		adminGroup.PUT("/users/:id/admin", hb.AdminHandler.SetAdminHandler)
		adminGroup.DELETE("/users/:id/devices/:deviceId", hb.AdminHandler.RevokeUserDeviceHandler)
		adminGroup.POST("/users/:id/impersonate", hb.AdminHandler.ImpersonateHandler)
		adminGroup.GET("/groups", hb.AdminHandler.GetAllGroupsHandler)
		adminGroup.DELETE("/groups/:id", hb.AdminHandler.DeleteGroupHandler)
		adminGroup.DELETE("/groups/:id/members/:memberId", hb.AdminHandler.RemoveGroupMemberHandler)
	}
}

// RegisterHealthRoute registers a health-check endpoint.
func RegisterHealthRoute(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.GET("/health", hb.HealthHandler.HealthCheckHandler)
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Authorization", "Content-Type", "X-Device-Name", "Last-Event-ID"},
		ExposeHeaders:   []string{"Content-Length"},
		MaxAge:          12 * time.Hour,
	}))

	RegisterClientRoutes(r, hb)
	RegisterAuthRoutes(r, hb)
	RegisterDeviceRoutes(r, hb)
	RegisterGroupRoutes(r, hb)
	RegisterAdminRoutes(r, hb)
	RegisterHealthRoute(r, hb)
}
