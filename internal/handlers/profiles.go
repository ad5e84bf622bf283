package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/smartpost/internal/services"
	"github.com/charlesng35/smartpost/pkg/errors"
	"github.com/charlesng35/smartpost/pkg/response"
)

// ProfileHandler exposes CRUD endpoints for free-form user profiles.
type ProfileHandler struct {
	profiles *services.ProfileService
}

// NewProfileHandler constructs a ProfileHandler.
func NewProfileHandler(profiles *services.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// Create handles POST /api/profile.
func (h *ProfileHandler) Create(c *gin.Context) {
	var data map[string]any
	if err := c.ShouldBindJSON(&data); err != nil {
		response.Error(c, errors.NewBadRequest("invalid JSON payload"))
		return
	}

	if name, _ := data["username"].(string); strings.TrimSpace(name) != "" && !h.owns(c, name) {
		return
	}

	username, err := h.profiles.Create(requestContext(c), data)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"message": "Created", "username": username})
}

// Get handles GET /api/profile/:username.
func (h *ProfileHandler) Get(c *gin.Context) {
	profile, err := h.profiles.Get(requestContext(c), c.Param("username"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, profile)
}

// Update handles PUT /api/profile/:username as a partial update.
func (h *ProfileHandler) Update(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	username := c.Param("username")
	if !h.owns(c, username) {
		return
	}

	var fields map[string]any
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&fields); err != nil {
			response.Error(c, errors.NewBadRequest("invalid JSON payload"))
			return
		}
	}

	if err := h.profiles.Update(requestContext(c), username, fields); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Updated", "username": username})
}

// Delete handles DELETE /api/profile/:username.
func (h *ProfileHandler) Delete(c *gin.Context) {
	username := c.Param("username")
	if !h.owns(c, username) {
		return
	}
	if err := h.profiles.Delete(requestContext(c), username); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Deleted", "username": username})
}

// owns allows writes only to the caller's own profile.
func (h *ProfileHandler) owns(c *gin.Context, username string) bool {
	userID, ok := currentUser(c)
	if !ok {
		return false
	}
	if strings.TrimSpace(username) != userID {
		response.Error(c, errors.ErrForbidden.WithMessage("Profiles can only be changed by their owner"))
		return false
	}
	return true
}
