package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatnest-server/internal/core"
	"github.com/vovakirdan/chatnest-server/internal/proto"
	"github.com/vovakirdan/chatnest-server/internal/store"
)

// UserHandlers provides HTTP handlers for user operations.
type UserHandlers struct {
	store store.UserStore
	hub   core.Hub
	log   *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(st store.UserStore, hub core.Hub, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		store: st,
		hub:   hub,
		log:   logger,
	}
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
}

// Profile returns the identity carried by the caller's credential.
// GET /api/profile
func (h *UserHandlers) Profile(c *gin.Context) {
	id, username, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, proto.OnlineUser{UserID: id, Username: username})
}

// People lists every registered user, the caller included.
// GET /api/people
func (h *UserHandlers) People(c *gin.Context) {
	users, err := h.store.ListUsers(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]UserResponse, 0, len(users))
	for _, u := range users {
		response = append(response, UserResponse{ID: u.ID, Username: u.Username})
	}
	c.JSON(http.StatusOK, response)
}

// Online returns the current presence snapshot, in the same shape as the
// presence push on /ws.
// GET /api/online
func (h *UserHandlers) Online(c *gin.Context) {
	snapshot, err := h.hub.Online(c.Request.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to read presence")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "presence unavailable"})
		return
	}
	c.JSON(http.StatusOK, outboundFromEvent(&core.Event{Kind: core.EventPresence, Online: snapshot}))
}
