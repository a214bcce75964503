// Copyright 2026 The Voxhall Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import "encoding/json"

// Remote method names the driver depends on. The room and
// direct-message lookups are cached (see Driver.Connect); the rest are
// dispatched directly.
const (
	methodGetRoomID           = "getRoomIdByNameOrId"
	methodGetRoomName         = "getRoomNameById"
	methodCreateDirectMessage = "createDirectMessage"
	methodJoinRoom            = "joinRoom"
	methodSendMessage         = "sendMessage"
)

// The well-known message stream. Subscribing to this topic with the
// catch-all key delivers every message visible to the bot; the
// collection of the same name carries the reactive change feed.
const (
	MessageStreamTopic = "stream-room-messages"
	MessageStreamKey   = "__my_messages__"
)

// Message is a chat message. The field tags follow the server's wire
// names.
type Message struct {
	ID     string `json:"_id,omitempty"`
	RoomID string `json:"rid"`
	Text   string `json:"msg"`
	Sender *User  `json:"u,omitempty"`
}

// User identifies a message sender.
type User struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
}

// NewTextMessage creates a plain text message addressed to a room.
func NewTextMessage(roomID, text string) *Message {
	return &Message{
		RoomID: roomID,
		Text:   text,
	}
}

// MessageHandler receives one live message per change notification.
// meta carries auxiliary context when the server provides it (e.g.
// edit metadata); it is nil otherwise. Malformed change-feed records
// are reported through err with a nil message — the dispatch loop
// never stops on a bad record.
type MessageHandler func(message *Message, meta json.RawMessage, err error)

// Credentials selects the account to authenticate as. Zero fields fall
// back to the configured bot account.
type Credentials struct {
	Username string
	Password string
}
