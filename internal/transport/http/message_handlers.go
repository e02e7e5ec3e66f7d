package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chatline/chatline-server/internal/store"
)

// MessageHandlers provides HTTP handlers for message history.
type MessageHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(st store.Store, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		store: st,
		log:   logger,
	}
}

// MessageResponse represents a stored message in API responses.
type MessageResponse struct {
	ID          int64   `json:"id"`
	ChatgroupID string  `json:"chatgroupId"`
	Sender      int64   `json:"sender"`
	Content     string  `json:"content"`
	ContentType string  `json:"contentType"`
	CreatedAt   string  `json:"createdAt"`
	SeenBy      []int64 `json:"seenBy"`
}

// MessagePage is one page of message history, newest first.
type MessagePage struct {
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
	Messages []MessageResponse `json:"messages"`
}

// ListMessages returns a page of messages for a group, newest first.
// GET /api/v1/messages/:groupId?page=1&limit=20
func (h *MessageHandlers) ListMessages(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	groupID := c.Param("groupId")
	if groupID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "group id is required"})
		return
	}

	page, err := positiveQueryInt(c, "page", 1)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "page must be a positive integer"})
		return
	}
	limit, err := positiveQueryInt(c, "limit", 20)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
		return
	}

	ctx := c.Request.Context()
	room, err := h.store.GetRoomByGroupID(ctx, groupID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "group not found"})
			return
		}
		h.log.Error().Err(err).Str("group_id", groupID).Msg("failed to load group")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	isMember, err := h.store.IsMember(ctx, room.ID, uid)
	if err != nil {
		h.log.Error().Err(err).Str("group_id", groupID).Msg("failed to check membership")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if !isMember {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a member of this group"})
		return
	}

	messages, err := h.store.ListMessages(ctx, groupID, page, limit)
	if err != nil {
		h.log.Error().Err(err).Str("group_id", groupID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	resp := MessagePage{
		Page:     page,
		Limit:    limit,
		Messages: make([]MessageResponse, 0, len(messages)),
	}
	for _, m := range messages {
		seenBy := m.SeenBy
		if seenBy == nil {
			seenBy = []int64{}
		}
		resp.Messages = append(resp.Messages, MessageResponse{
			ID:          m.ID,
			ChatgroupID: m.GroupID,
			Sender:      m.SenderID,
			Content:     m.Content,
			ContentType: string(m.ContentKind),
			CreatedAt:   m.CreatedAt.Format(time.RFC3339),
			SeenBy:      seenBy,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// positiveQueryInt reads a query parameter as an integer >= 1, falling
// back to def when the parameter is absent.
func positiveQueryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, errors.New("must be a positive integer")
	}
	return v, nil
}
