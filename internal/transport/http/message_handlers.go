package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatnest-server/internal/blob"
	"github.com/vovakirdan/chatnest-server/internal/store"
)

// MessageHandlers serves conversation history and file uploads.
type MessageHandlers struct {
	store    store.MessageStore
	blobs    *blob.Store
	maxBytes int64
	log      *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(st store.MessageStore, blobs *blob.Store, maxBytes int64, logger *zerolog.Logger) *MessageHandlers {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMessageBytes
	}
	return &MessageHandlers{
		store:    st,
		blobs:    blobs,
		maxBytes: maxBytes,
		log:      logger,
	}
}

// MessageResponse represents a stored message in API responses.
type MessageResponse struct {
	ID        string    `json:"_id"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Text      string    `json:"text,omitempty"`
	File      *string   `json:"file"`
	CreatedAt time.Time `json:"createdAt"`
}

// UploadResponse is returned after a successful upload.
type UploadResponse struct {
	Filename string `json:"filename"`
}

// History returns the conversation between the caller and :userId, oldest first.
// GET /api/messages/:userId
func (h *MessageHandlers) History(c *gin.Context) {
	self, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	other := c.Param("userId")
	if other == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "userId is required"})
		return
	}

	msgs, err := h.store.ListConversation(c.Request.Context(), self, other)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", self).Str("peer_id", other).Msg("failed to load history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp := MessageResponse{
			ID:        m.ID,
			Sender:    m.Sender,
			Recipient: m.Recipient,
			Text:      m.Text,
			CreatedAt: m.CreatedAt,
		}
		if m.File != "" {
			file := m.File
			resp.File = &file
		}
		response = append(response, resp)
	}
	c.JSON(http.StatusOK, response)
}

// Upload stores a multipart "file" field in blob storage.
// POST /api/upload
func (h *MessageHandlers) Upload(c *gin.Context) {
	if c.Request.ContentLength > h.maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "file too large"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "file is required"})
		return
	}

	f, err := header.Open()
	if err != nil {
		h.log.Error().Err(err).Msg("failed to open upload")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to read upload")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	name := blob.NewName(header.Filename)
	if err := h.blobs.Write(c.Request.Context(), name, data); err != nil {
		h.log.Error().Err(err).Str("file", name).Msg("failed to store upload")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("file", name).Int("bytes", len(data)).Msg("file uploaded")
	c.JSON(http.StatusCreated, UploadResponse{Filename: name})
}
