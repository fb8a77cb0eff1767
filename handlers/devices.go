package handlers

import (
	"net/http"

	"skylark/middleware"
	"skylark/models"
	"skylark/services/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DeviceHandler exposes the login history of the current account.
type DeviceHandler struct {
	Devices *session.DeviceService
}

func NewDeviceHandler(devices *session.DeviceService) *DeviceHandler {
	return &DeviceHandler{Devices: devices}
}

// deviceView marks which entry is this client and which one holds the
// account's live session.
type deviceView struct {
	models.Device
	Current bool `json:"current"`
	Active  bool `json:"active"`
}

// ListDevicesHandler handles GET /api/devices.
func (h *DeviceHandler) ListDevicesHandler(c *gin.Context) {
	s, _ := middleware.ShellFrom(c)
	account, _ := middleware.AccountFrom(c)

	devices, activeToken, err := h.Devices.List(c.Request.Context(), account.ID)
	if err != nil {
		respondError(c, "Failed to list devices", err)
		return
	}
	token := s.Current().Token
	out := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		out = append(out, deviceView{
			Device:  d,
			Current: d.ID == token,
			Active:  d.ID == activeToken,
		})
	}
	c.JSON(http.StatusOK, gin.H{"devices": out})
}

// RevokeDeviceHandler handles DELETE /api/devices/:id. Revoking the device
// that holds the session ends it wherever it is open.
func (h *DeviceHandler) RevokeDeviceHandler(c *gin.Context) {
	account, _ := middleware.AccountFrom(c)
	deviceID := c.Param("id")
	if err := h.Devices.RevokeDevice(c.Request.Context(), account.ID, deviceID); err != nil {
		respondError(c, "Failed to revoke device", err)
		return
	}
	getLogger(c).Info("Device revoked", zap.String("accountId", account.ID), zap.String("deviceId", deviceID))
	c.JSON(http.StatusOK, gin.H{"message": "Device revoked"})
}

// RevokeOtherDevicesHandler handles POST /api/devices/revoke-others.
func (h *DeviceHandler) RevokeOtherDevicesHandler(c *gin.Context) {
	account, _ := middleware.AccountFrom(c)
	if err := h.Devices.RevokeAllOtherDevices(c.Request.Context(), account.ID); err != nil {
		respondError(c, "Failed to revoke other devices", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Other devices revoked"})
}
