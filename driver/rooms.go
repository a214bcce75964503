// Copyright 2026 The Voxhall Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// GetRoomID resolves a room name (or ID) to the canonical room ID.
// Results are cached under the room policy.
func (d *Driver) GetRoomID(ctx context.Context, nameOrID string) (string, error) {
	name := strings.TrimPrefix(nameOrID, "#")
	result, err := d.Dispatch(ctx, methodGetRoomID, name)
	if err != nil {
		return "", fmt.Errorf("driver: resolving room %q: %w", name, err)
	}
	return decodeString(methodGetRoomID, result)
}

// GetRoomName resolves a room ID back to its name. Results are cached
// under the room policy.
func (d *Driver) GetRoomName(ctx context.Context, roomID string) (string, error) {
	result, err := d.Dispatch(ctx, methodGetRoomName, roomID)
	if err != nil {
		return "", fmt.Errorf("driver: resolving name of room %s: %w", roomID, err)
	}
	return decodeString(methodGetRoomName, result)
}

// GetDirectMessageRoomID resolves (creating if necessary) the direct
// message room shared with a user. Results are cached under the
// direct-message policy.
func (d *Driver) GetDirectMessageRoomID(ctx context.Context, username string) (string, error) {
	name := strings.TrimPrefix(username, "@")
	result, err := d.Dispatch(ctx, methodCreateDirectMessage, name)
	if err != nil {
		return "", fmt.Errorf("driver: opening direct message with %s: %w", name, err)
	}

	var room struct {
		RoomID string `json:"rid"`
	}
	if err := json.Unmarshal(result, &room); err != nil {
		return "", fmt.Errorf("driver: decoding %s result: %w", methodCreateDirectMessage, err)
	}
	if room.RoomID == "" {
		return "", fmt.Errorf("driver: %s result carried no room id", methodCreateDirectMessage)
	}
	return room.RoomID, nil
}

// JoinRoom joins the room with the given ID. Never cached.
func (d *Driver) JoinRoom(ctx context.Context, roomID string) error {
	if _, err := d.CallMethod(ctx, methodJoinRoom, roomID); err != nil {
		return fmt.Errorf("driver: joining room %s: %w", roomID, err)
	}
	return nil
}

// SendMessage sends a prepared message. Never cached.
func (d *Driver) SendMessage(ctx context.Context, message *Message) (json.RawMessage, error) {
	result, err := d.CallMethod(ctx, methodSendMessage, message)
	if err != nil {
		return nil, fmt.Errorf("driver: sending message to room %s: %w", message.RoomID, err)
	}
	return result, nil
}

// SendToRoom resolves a room by name and sends text to it.
func (d *Driver) SendToRoom(ctx context.Context, room, text string) (json.RawMessage, error) {
	roomID, err := d.GetRoomID(ctx, room)
	if err != nil {
		return nil, err
	}
	return d.SendMessage(ctx, NewTextMessage(roomID, text))
}

// SendDirectToUser sends text to the direct message room shared with a
// user, creating the room if it does not exist yet.
func (d *Driver) SendDirectToUser(ctx context.Context, username, text string) (json.RawMessage, error) {
	roomID, err := d.GetDirectMessageRoomID(ctx, username)
	if err != nil {
		return nil, err
	}
	return d.SendMessage(ctx, NewTextMessage(roomID, text))
}

// decodeString unwraps a JSON string result, tolerating a bare
// (unquoted) value from servers that reply with raw text.
func decodeString(method string, raw json.RawMessage) (string, error) {
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		trimmed := strings.TrimSpace(string(raw))
		if trimmed != "" && !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
			return trimmed, nil
		}
		return "", fmt.Errorf("driver: decoding %s result: %w", method, err)
	}
	return value, nil
}
