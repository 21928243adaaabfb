package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/vovakirdan/chatline-server/internal/core"
	"github.com/vovakirdan/chatline-server/internal/proto"
)

var validate = validator.New()

func inboundToCommand(inbound proto.Inbound) (core.Command, error) {
	switch inbound.Type {
	case proto.InboundTypeJoinRoom:
		roomID, err := joinRoomID(inbound.Data)
		if err != nil {
			return core.Command{}, err
		}
		room, err := core.ParseRoomKey(roomID)
		if err != nil {
			return core.Command{}, core.Malformed("invalid room id")
		}
		return core.Command{Kind: core.CommandJoinRoom, Room: room}, nil

	case proto.InboundTypeTypingStart, proto.InboundTypeTypingStop:
		rawID, err := typingChatID(inbound.Data)
		if err != nil {
			return core.Command{}, err
		}
		chatID, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil || chatID <= 0 {
			return core.Command{}, core.Malformed("invalid chat id")
		}
		kind := core.CommandTypingStart
		if inbound.Type == proto.InboundTypeTypingStop {
			kind = core.CommandTypingStop
		}
		return core.Command{Kind: kind, ChatID: chatID}, nil

	default:
		return core.Command{}, core.Malformed("unknown message type")
	}
}

// joinRoomID accepts either a bare JSON string or {"room_id": "..."}.
func joinRoomID(raw json.RawMessage) (string, error) {
	var data proto.JoinRoomData
	id, bare, err := bareString(raw)
	switch {
	case err != nil:
		return "", core.Malformed("invalid room id")
	case bare:
		data.RoomID = id
	default:
		if err := json.Unmarshal(raw, &data); err != nil {
			return "", core.Malformed("invalid join payload")
		}
	}
	if err := validate.Struct(data); err != nil {
		return "", core.Malformed("room_id is required")
	}
	return data.RoomID, nil
}

// typingChatID accepts either a bare JSON string or {"chat_id": "..."}.
func typingChatID(raw json.RawMessage) (string, error) {
	var data proto.TypingData
	id, bare, err := bareString(raw)
	switch {
	case err != nil:
		return "", core.Malformed("invalid chat id")
	case bare:
		data.ChatID = id
	default:
		if err := json.Unmarshal(raw, &data); err != nil {
			return "", core.Malformed("invalid typing payload")
		}
	}
	if err := validate.Struct(data); err != nil {
		return "", core.Malformed("chat_id is required")
	}
	return data.ChatID, nil
}

// bareString decodes raw when it is a JSON string; bare is false for any other value.
func bareString(raw json.RawMessage) (s string, bare bool, err error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false, nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", true, err
	}
	return s, true, nil
}

func outboundFromEvent(ev core.Event) proto.Outbound {
	return proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: string(ev.Kind),
		Data:  ev.Payload,
	}
}

func outboundFromError(err error) proto.Outbound {
	var coreErr *core.CoreError
	if errors.As(err, &coreErr) {
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: coreErr.Code, Msg: coreErr.Message},
		}
	}
	return proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: &proto.Error{Code: core.ErrCodeBadRequest, Msg: "bad request"},
	}
}
