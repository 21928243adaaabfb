package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// RoomKind is the namespace part of a RoomKey.
type RoomKind string

const (
	// RoomKindUser is the identity room every authenticated connection joins.
	RoomKindUser RoomKind = "user"
	// RoomKindChat is bound to one chat or channel.
	RoomKindChat RoomKind = "chat"
	// RoomKindCommunity is reserved for community-wide delivery.
	RoomKindCommunity RoomKind = "community"
)

// ErrInvalidRoomKey is returned by ParseRoomKey for unknown or malformed keys.
var ErrInvalidRoomKey = errors.New("invalid room key")

// RoomKey identifies a delivery group, e.g. "user:7" or "chat:42".
// Keys carry no authorization; they only address connections.
type RoomKey string

// UserRoom returns the identity room of a user.
func UserRoom(userID int64) RoomKey {
	return newRoomKey(RoomKindUser, userID)
}

// ChatRoom returns the room bound to a chat.
func ChatRoom(chatID int64) RoomKey {
	return newRoomKey(RoomKindChat, chatID)
}

// CommunityRoom returns the room bound to a community.
func CommunityRoom(communityID int64) RoomKey {
	return newRoomKey(RoomKindCommunity, communityID)
}

func newRoomKey(kind RoomKind, id int64) RoomKey {
	return RoomKey(string(kind) + ":" + strconv.FormatInt(id, 10))
}

// ParseRoomKey validates "<kind>:<id>". A bare id is read as a chat id.
func ParseRoomKey(s string) (RoomKey, error) {
	s = strings.TrimSpace(s)
	kind, rawID, found := strings.Cut(s, ":")
	if !found {
		kind, rawID = string(RoomKindChat), s
	}

	switch RoomKind(kind) {
	case RoomKindUser, RoomKindChat, RoomKindCommunity:
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidRoomKey, kind)
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return "", fmt.Errorf("%w: bad id %q", ErrInvalidRoomKey, rawID)
	}
	return newRoomKey(RoomKind(kind), id), nil
}

// Kind returns the namespace of the key.
func (k RoomKey) Kind() RoomKind {
	kind, _, _ := strings.Cut(string(k), ":")
	return RoomKind(kind)
}

// ID returns the numeric id of the key, or 0 when the key is malformed.
func (k RoomKey) ID() int64 {
	_, rawID, _ := strings.Cut(string(k), ":")
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func (k RoomKey) String() string {
	return string(k)
}
