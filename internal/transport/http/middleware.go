package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	// ContextKeyUserID is the context key for storing user ID.
	ContextKeyUserID = "user_id"
	// ContextKeyUsername is the context key for storing username.
	ContextKeyUsername = "username"
)

// AuthMiddleware creates a middleware that validates the session credential
// taken from the token cookie or a bearer header.
func AuthMiddleware(verifier Verifier, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := credentialFrom(c.Request)
		if token == "" {
			logger.Debug().Str("path", c.Request.URL.Path).Msg("missing credential")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing credential"})
			return
		}

		identity, err := verifier.Verify(token)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			return
		}

		// Store user info in context
		c.Set(ContextKeyUserID, identity.ID)
		c.Set(ContextKeyUsername, identity.Username)

		c.Next()
	}
}

// CORSMiddleware allows one browser origin to call the API with credentials.
// An empty origin disables the headers.
func CORSMiddleware(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin == "" {
			c.Next()
			return
		}

		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Add("Vary", "Origin")

		if c.Request.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", strings.Join([]string{
				http.MethodGet, http.MethodPost, http.MethodOptions,
			}, ", "))
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Process request
		c.Next()

		// Log after request
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

// currentUser returns the identity stored by AuthMiddleware.
func currentUser(c *gin.Context) (id, username string, ok bool) {
	id = c.GetString(ContextKeyUserID)
	username = c.GetString(ContextKeyUsername)
	return id, username, id != ""
}
