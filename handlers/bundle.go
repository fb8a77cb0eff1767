package handlers

import (
	"skylark/shell"
	"skylark/utils"
)

// HandlerBundle groups all endpoint handlers into one struct.
type HandlerBundle struct {
	Tokens   *utils.ClientTokens
	Registry *shell.Registry

	ClientHandler *ClientHandler
	AuthHandler   *AuthHandler
	DeviceHandler *DeviceHandler
	GroupHandler  *GroupHandler
	AdminHandler  *AdminHandler
	HealthHandler *HealthHandler
}
