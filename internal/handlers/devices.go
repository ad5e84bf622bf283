package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/smartpost/internal/services"
	"github.com/charlesng35/smartpost/pkg/response"
)

// DeviceHandler serves device state and command endpoints.
type DeviceHandler struct {
	devices *services.DeviceService
}

// NewDeviceHandler constructs a DeviceHandler.
func NewDeviceHandler(devices *services.DeviceService) *DeviceHandler {
	return &DeviceHandler{devices: devices}
}

// State handles GET /api/devices/:id/state.
func (h *DeviceHandler) State(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}

	state, err := h.devices.State(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

type commandRequest struct {
	Command string `json:"command"`
}

// Command handles POST /api/devices/:id/command.
func (h *DeviceHandler) Command(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if !requireJSON(c) {
		return
	}

	var req commandRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.devices.Command(requestContext(c), userID, c.Param("id"), req.Command)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}
