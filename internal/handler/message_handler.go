package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aditya2785/web-chat/internal/auth"
	"github.com/aditya2785/web-chat/internal/media"
	"github.com/aditya2785/web-chat/internal/model"
	"github.com/aditya2785/web-chat/internal/service"
)

// maxFileSize caps multipart file uploads (20MB, matching the old limit).
const maxFileSize = 20 << 20

type MessageHandler interface {
	GetPeers(c *gin.Context)
	GetMessages(c *gin.Context)
	MarkSeen(c *gin.Context)
	SendMessage(c *gin.Context)
	SendFileMessage(c *gin.Context)
}

type messageHandler struct {
	service service.ConversationService
	media   media.Storage
}

func NewMessageHandler(svc service.ConversationService, mediaStore media.Storage) MessageHandler {
	return &messageHandler{
		service: svc,
		media:   mediaStore,
	}
}

// GetPeers returns every other user plus the caller's unseen-message count
// per peer, in the sidebar shape clients already consume.
func (h *messageHandler) GetPeers(c *gin.Context) {
	peers, err := h.service.ListPeers(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to list users")
		return
	}

	users := make([]model.User, 0, len(peers))
	unseen := make(map[string]int64)
	for _, p := range peers {
		users = append(users, p.User)
		if p.UnseenCount > 0 {
			unseen[p.User.ID.Hex()] = p.UnseenCount
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"users":          users,
		"unseenMessages": unseen,
	})
}

func (h *messageHandler) GetMessages(c *gin.Context) {
	msgs, err := h.service.FetchConversation(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to get messages")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"messages": msgs,
	})
}

func (h *messageHandler) MarkSeen(c *gin.Context) {
	if _, err := h.service.MarkSeen(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, http.StatusNotFound, "Message not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to mark seen")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *messageHandler) SendMessage(c *gin.Context) {
	var payload model.MessagePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.service.SendMessage(c.Request.Context(), auth.UserID(c), c.Param("id"), payload)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			respondError(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrNotFound):
			respondError(c, http.StatusNotFound, "Receiver not found")
		default:
			respondError(c, http.StatusInternalServerError, "failed to send message")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"newMessage": msg,
	})
}

// SendFileMessage accepts a multipart upload, stores the blob, and sends the
// resulting file message. The stored message carries only the opaque URL.
func (h *messageHandler) SendFileMessage(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "file is required")
		return
	}
	if fileHeader.Size > maxFileSize {
		respondError(c, http.StatusBadRequest, "file too large")
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "cannot read file")
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxFileSize))
	if err != nil {
		respondError(c, http.StatusBadRequest, "cannot read file")
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	url, err := h.media.SaveBlob(c.Request.Context(), fileHeader.Filename, mimeType, data)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to store file")
		return
	}

	payload := model.MessagePayload{
		File: &model.FileInfo{
			URL:      url,
			Name:     fileHeader.Filename,
			MimeType: mimeType,
			Size:     fileHeader.Size,
		},
	}

	msg, err := h.service.SendMessage(c.Request.Context(), auth.UserID(c), c.Param("id"), payload)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, http.StatusNotFound, "Receiver not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to send file message")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"newMessage": msg,
	})
}
