package handlers

import (
	"errors"
	"net/http"

	"skylark/services/admin"
	"skylark/services/chat"
	"skylark/services/group"
	"skylark/services/session"
	"skylark/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const retryMessage = "Something went wrong. Please try again."

// errorStatus maps a service error to its HTTP status and the message shown
// to the user.
func errorStatus(err error) (int, string) {
	var forced *session.ForcedLogoutError
	switch {
	case errors.As(err, &forced):
		return http.StatusUnauthorized, forced.Reason.Message()
	case utils.IsStoreError(err):
		return http.StatusServiceUnavailable, retryMessage
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "Account not found"
	case errors.Is(err, session.ErrBadCredentials):
		return http.StatusUnauthorized, "Incorrect password"
	case errors.Is(err, session.ErrAlreadyExists):
		return http.StatusConflict, "Username already taken"
	case errors.Is(err, session.ErrInvalidInput):
		return http.StatusBadRequest, "Username and password are required"
	case errors.Is(err, session.ErrNotLoggedIn):
		return http.StatusUnauthorized, "Not logged in"
	case errors.Is(err, session.ErrNotAdmin):
		return http.StatusForbidden, "Admin access required"
	case errors.Is(err, session.ErrAlreadyImpersonating):
		return http.StatusConflict, "Already impersonating a user"
	case errors.Is(err, session.ErrDeviceNotFound):
		return http.StatusNotFound, "Device not found"
	case errors.Is(err, session.ErrSessionChanged):
		return http.StatusConflict, "Your sessions changed. Please try again."
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable, retryMessage
	case errors.Is(err, group.ErrNameRequired), errors.Is(err, group.ErrCodeRequired),
		errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, group.ErrInvalidCode):
		return http.StatusNotFound, "Invalid group code"
	case errors.Is(err, group.ErrCodeTaken):
		return http.StatusConflict, "Group code already in use"
	case errors.Is(err, group.ErrGroupNotFound):
		return http.StatusNotFound, "Group not found"
	case errors.Is(err, group.ErrNotMember):
		return http.StatusForbidden, "You are not a member of this group"
	case errors.Is(err, admin.ErrProtectedAccount):
		return http.StatusForbidden, "This account is protected"
	default:
		return http.StatusInternalServerError, retryMessage
	}
}

// respondError logs err and writes the mapped JSON error.
func respondError(c *gin.Context, msg string, err error) {
	status, text := errorStatus(err)
	logger := getLogger(c)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, zap.Error(err))
	} else {
		logger.Warn(msg, zap.Int("status", status), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": text})
}

func badRequest(c *gin.Context, err error) {
	getLogger(c).Warn("Invalid request body", zap.Error(err))
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
}
