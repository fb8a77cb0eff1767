package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const maxDescriptorLen = 200

// DeviceDescriptor names the calling client for the device history. An
// explicit X-Device-Name wins over the User-Agent.
func DeviceDescriptor(c *gin.Context) string {
	name := strings.TrimSpace(c.GetHeader("X-Device-Name"))
	if name == "" {
		name = strings.TrimSpace(c.Request.UserAgent())
	}
	if name == "" {
		name = "Unknown device"
	}
	if len(name) > maxDescriptorLen {
		name = name[:maxDescriptorLen]
	}
	return name
}
