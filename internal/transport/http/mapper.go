package http

import (
	"encoding/json"

	"github.com/chatline/chatline-server/internal/core"
	"github.com/chatline/chatline-server/internal/proto"
)

// inboundToCommand maps a wire event to a core command. A non-empty
// protoErr means the payload failed validation and should be reported to
// the client without closing the connection; a non-nil error is fatal.
func inboundToCommand(inbound proto.Inbound) (*core.Command, string, error) {
	switch inbound.Type {
	case proto.InboundTypeJoinGroup:
		var join proto.JoinGroupData
		if err := json.Unmarshal(inbound.Data, &join); err != nil {
			return nil, "", err
		}
		if len(join.GroupIDs) == 0 {
			return nil, "groupIds is required", nil
		}
		return &core.Command{
			Kind:     core.CommandJoinGroups,
			GroupIDs: join.GroupIDs,
		}, "", nil

	case proto.InboundTypeSendMessage:
		var msg proto.SendMessageData
		if err := json.Unmarshal(inbound.Data, &msg); err != nil {
			return nil, "", err
		}
		if msg.ChatgroupID == "" {
			return nil, "chatgroupId is required", nil
		}
		if msg.Content == "" {
			return nil, "content is required", nil
		}
		return &core.Command{
			Kind:        core.CommandSendMessage,
			GroupID:     msg.ChatgroupID,
			Content:     msg.Content,
			ContentKind: msg.ContentKind,
		}, "", nil

	case proto.InboundTypeTyping, proto.InboundTypeStopTyping:
		var typing proto.TypingData
		if err := json.Unmarshal(inbound.Data, &typing); err != nil {
			return nil, "", err
		}
		if typing.ChatgroupID == "" {
			return nil, "chatgroupId is required", nil
		}
		kind := core.CommandTyping
		if inbound.Type == proto.InboundTypeStopTyping {
			kind = core.CommandStopTyping
		}
		return &core.Command{
			Kind:    kind,
			GroupID: typing.ChatgroupID,
		}, "", nil

	case proto.InboundTypeSeenMessage:
		var seen proto.SeenMessageData
		if err := json.Unmarshal(inbound.Data, &seen); err != nil {
			return nil, "", err
		}
		if seen.ChatgroupID == "" {
			return nil, "chatgroupId is required", nil
		}
		if seen.MessageID == 0 {
			return nil, "messageId is required", nil
		}
		return &core.Command{
			Kind:      core.CommandMarkSeen,
			GroupID:   seen.ChatgroupID,
			MessageID: seen.MessageID,
		}, "", nil

	default:
		return nil, "unknown event type", nil
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventNewMessage:
		return proto.Outbound{
			Type:  "event",
			Event: proto.OutboundEventNewMessage,
			Data:  storedMessageFromCore(event.Message),
		}
	case core.EventUserTyping:
		return proto.Outbound{
			Type:  "event",
			Event: proto.OutboundEventUserTyping,
			Data:  proto.TypingEvent{UserID: event.UserID},
		}
	case core.EventUserStopTyping:
		return proto.Outbound{
			Type:  "event",
			Event: proto.OutboundEventUserStopTyping,
			Data:  proto.TypingEvent{UserID: event.UserID},
		}
	case core.EventMessageSeen:
		return proto.Outbound{
			Type:  "event",
			Event: proto.OutboundEventMessageSeen,
			Data:  proto.MessageSeenEvent{UserID: event.UserID, MessageID: event.MessageID},
		}
	case core.EventUserOnline:
		return proto.Outbound{
			Type:  "event",
			Event: proto.OutboundEventUserOnline,
			Data:  proto.PresenceEvent{UserID: event.UserID},
		}
	case core.EventUserOffline:
		return proto.Outbound{
			Type:  "event",
			Event: proto.OutboundEventUserOffline,
			Data:  proto.PresenceEvent{UserID: event.UserID},
		}
	case core.EventError:
		msg := "unknown error"
		if event.Error != nil {
			msg = event.Error.Message
		}
		return proto.Outbound{
			Type:  "event",
			Event: proto.OutboundEventError,
			Data:  msg,
		}
	default:
		return proto.Outbound{Type: "event"}
	}
}

func storedMessageFromCore(msg *core.Message) proto.StoredMessage {
	if msg == nil {
		return proto.StoredMessage{}
	}
	seenBy := msg.SeenBy
	if seenBy == nil {
		seenBy = []int64{}
	}
	return proto.StoredMessage{
		ID:          msg.ID,
		ChatgroupID: msg.GroupID,
		Sender:      msg.SenderID,
		Content:     msg.Content,
		ContentKind: msg.ContentKind,
		CreatedAt:   msg.CreatedAt,
		SeenBy:      seenBy,
	}
}
