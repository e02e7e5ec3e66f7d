package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chatline/chatline-server/internal/store"
)

// GroupHandlers provides HTTP handlers for chat group management.
type GroupHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewGroupHandlers creates a new group handlers instance.
func NewGroupHandlers(st store.Store, logger *zerolog.Logger) *GroupHandlers {
	return &GroupHandlers{
		store: st,
		log:   logger,
	}
}

// CreateGroupRequest represents the create group request body.
type CreateGroupRequest struct {
	Name      string  `json:"name" binding:"required,min=3,max=25"`
	MemberIDs []int64 `json:"memberIds"`
}

// DirectChatRequest represents the start direct chat request body.
type DirectChatRequest struct {
	RecipientID int64 `json:"recipientId" binding:"required"`
}

// AddMembersRequest represents the add members request body.
type AddMembersRequest struct {
	MemberIDs []int64 `json:"memberIds" binding:"required,min=1"`
}

// RenameGroupRequest represents the rename group request body.
type RenameGroupRequest struct {
	Name string `json:"name" binding:"required,min=3,max=25"`
}

// GroupResponse represents a chat group in API responses.
type GroupResponse struct {
	GroupID   string         `json:"groupId"`
	Name      string         `json:"name"`
	IsGroup   bool           `json:"isGroup"`
	AdminID   *int64         `json:"adminId,omitempty"`
	CreatedAt string         `json:"createdAt"`
	Members   []UserResponse `json:"members,omitempty"`
}

func groupResponseFrom(room *store.Room, members []*store.User) GroupResponse {
	resp := GroupResponse{
		GroupID:   room.GroupID,
		Name:      room.Name,
		IsGroup:   room.IsGroup,
		AdminID:   room.AdminID,
		CreatedAt: room.CreatedAt.Format(time.RFC3339),
	}
	for _, m := range members {
		resp.Members = append(resp.Members, userResponseFrom(m))
	}
	return resp
}

// CreateGroup handles group creation. The creator becomes admin and member.
// POST /api/v1/chat-group
func (h *GroupHandlers) CreateGroup(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create group request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	groupID := uuid.NewString()
	room, err := h.store.CreateGroup(c.Request.Context(), groupID, req.Name, uid, req.MemberIDs)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "group with this name already exists"})
			return
		}
		h.log.Error().Err(err).Str("group_name", req.Name).Msg("failed to create group")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	members, err := h.store.ListMembers(c.Request.Context(), room.ID)
	if err != nil {
		h.log.Error().Err(err).Str("group_id", room.GroupID).Msg("failed to list members")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("group_id", room.GroupID).Str("group_name", room.Name).Int64("admin_id", uid).Msg("group created")
	c.JSON(http.StatusCreated, groupResponseFrom(room, members))
}

// StartDirectChat creates a two-party direct room, or returns the
// existing one for the same pair.
// POST /api/v1/chat-group/direct
func (h *GroupHandlers) StartDirectChat(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req DirectChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.RecipientID == uid {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot start a direct chat with yourself"})
		return
	}

	ctx := c.Request.Context()
	sender, err := h.store.GetUserByID(ctx, uid)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	recipient, err := h.store.GetUserByID(ctx, req.RecipientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", req.RecipientID).Msg("failed to load recipient")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	lo, hi := uid, req.RecipientID
	if lo > hi {
		lo, hi = hi, lo
	}
	directKey := fmt.Sprintf("dm:%d:%d", lo, hi)
	groupID := uuid.NewString()
	name := sender.Username + "-" + recipient.Username

	room, err := h.store.CreateDirectRoom(ctx, directKey, groupID, name, uid, req.RecipientID)
	if err != nil {
		h.log.Error().Err(err).Str("direct_key", directKey).Msg("failed to create direct chat")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	members, err := h.store.ListMembers(ctx, room.ID)
	if err != nil {
		h.log.Error().Err(err).Str("group_id", room.GroupID).Msg("failed to list members")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	// The store returns the existing room when the pair already has one.
	status := http.StatusCreated
	if room.GroupID != groupID {
		status = http.StatusOK
	}
	c.JSON(status, groupResponseFrom(room, members))
}

// ListGroups lists the chat groups the authenticated user belongs to.
// GET /api/v1/chat-group
func (h *GroupHandlers) ListGroups(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	rooms, err := h.store.ListRoomsForUser(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to list groups")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]GroupResponse, 0, len(rooms))
	for _, room := range rooms {
		members, err := h.store.ListMembers(c.Request.Context(), room.ID)
		if err != nil {
			h.log.Error().Err(err).Str("group_id", room.GroupID).Msg("failed to list members")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
		response = append(response, groupResponseFrom(room, members))
	}

	c.JSON(http.StatusOK, response)
}

// GetGroup returns one chat group with its members.
// GET /api/v1/chat-group/:groupId
func (h *GroupHandlers) GetGroup(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	room, ok := h.loadRoomForMember(c, uid)
	if !ok {
		return
	}

	members, err := h.store.ListMembers(c.Request.Context(), room.ID)
	if err != nil {
		h.log.Error().Err(err).Str("group_id", room.GroupID).Msg("failed to list members")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, groupResponseFrom(room, members))
}

// AddMembers adds users to a group room. Admin only.
// PATCH /api/v1/chat-group/:groupId/members
func (h *GroupHandlers) AddMembers(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req AddMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	room, ok := h.loadAdminRoom(c, uid)
	if !ok {
		return
	}

	if err := h.store.AddMembers(c.Request.Context(), room.ID, req.MemberIDs); err != nil {
		h.log.Error().Err(err).Str("group_id", room.GroupID).Msg("failed to add members")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	members, err := h.store.ListMembers(c.Request.Context(), room.ID)
	if err != nil {
		h.log.Error().Err(err).Str("group_id", room.GroupID).Msg("failed to list members")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, groupResponseFrom(room, members))
}

// RenameGroup changes a group room's name. Admin only.
// PATCH /api/v1/chat-group/:groupId/name
func (h *GroupHandlers) RenameGroup(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req RenameGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	room, ok := h.loadAdminRoom(c, uid)
	if !ok {
		return
	}

	if err := h.store.RenameRoom(c.Request.Context(), room.ID, req.Name); err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "group with this name already exists"})
			return
		}
		h.log.Error().Err(err).Str("group_id", room.GroupID).Msg("failed to rename group")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	room.Name = req.Name

	members, err := h.store.ListMembers(c.Request.Context(), room.ID)
	if err != nil {
		h.log.Error().Err(err).Str("group_id", room.GroupID).Msg("failed to list members")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, groupResponseFrom(room, members))
}

// RemoveMember removes a user from a group room. Admin only; the admin
// cannot be removed.
// DELETE /api/v1/chat-group/:groupId/members/:userId
func (h *GroupHandlers) RemoveMember(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	memberID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}

	room, ok := h.loadAdminRoom(c, uid)
	if !ok {
		return
	}

	if room.AdminID != nil && *room.AdminID == memberID {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot remove the group admin"})
		return
	}

	if err := h.store.RemoveMember(c.Request.Context(), room.ID, memberID); err != nil {
		h.log.Error().Err(err).Str("group_id", room.GroupID).Msg("failed to remove member")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.Status(http.StatusNoContent)
}

// DeleteGroup removes a group room with its messages. Admin only.
// DELETE /api/v1/chat-group/:groupId
func (h *GroupHandlers) DeleteGroup(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	room, ok := h.loadAdminRoom(c, uid)
	if !ok {
		return
	}

	if err := h.store.DeleteRoom(c.Request.Context(), room.ID); err != nil {
		h.log.Error().Err(err).Str("group_id", room.GroupID).Msg("failed to delete group")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("group_id", room.GroupID).Msg("group deleted")
	c.Status(http.StatusNoContent)
}

// loadRoomForMember resolves :groupId and requires the user to be a member.
func (h *GroupHandlers) loadRoomForMember(c *gin.Context, uid int64) (*store.Room, bool) {
	room, ok := h.loadRoom(c)
	if !ok {
		return nil, false
	}

	isMember, err := h.store.IsMember(c.Request.Context(), room.ID, uid)
	if err != nil {
		h.log.Error().Err(err).Str("group_id", room.GroupID).Msg("failed to check membership")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return nil, false
	}
	if !isMember {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a member of this group"})
		return nil, false
	}

	return room, true
}

// loadAdminRoom resolves :groupId and requires a group room with the
// user as admin.
func (h *GroupHandlers) loadAdminRoom(c *gin.Context, uid int64) (*store.Room, bool) {
	room, ok := h.loadRoom(c)
	if !ok {
		return nil, false
	}

	if !room.IsGroup {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "direct chats have fixed membership"})
		return nil, false
	}
	if room.AdminID == nil || *room.AdminID != uid {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "only the group admin can do this"})
		return nil, false
	}

	return room, true
}

func (h *GroupHandlers) loadRoom(c *gin.Context) (*store.Room, bool) {
	groupID := c.Param("groupId")
	if groupID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "group id is required"})
		return nil, false
	}

	room, err := h.store.GetRoomByGroupID(c.Request.Context(), groupID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "group not found"})
			return nil, false
		}
		h.log.Error().Err(err).Str("group_id", groupID).Msg("failed to load group")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return nil, false
	}

	return room, true
}
