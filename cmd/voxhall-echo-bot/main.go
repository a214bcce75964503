// Copyright 2026 The Voxhall Authors
// SPDX-License-Identifier: Apache-2.0

// voxhall-echo-bot is a demonstration bot wired against the in-process
// transport. It connects a driver, logs in, subscribes to the message
// stream, and echoes every injected message back to its room. The
// server side is simulated: method handlers resolve a fixed room and a
// scripted set of messages is pushed through the change feed.
//
// Configuration comes from the usual sources: defaults, then the YAML
// file named by --config (or $VOXHALL_CONFIG), then VOXHALL_*
// environment variables.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/spf13/pflag"

	"github.com/voxhall-im/voxhall-go/config"
	"github.com/voxhall-im/voxhall-go/driver"
	"github.com/voxhall-im/voxhall-go/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var room string
	var verbose bool

	flagSet := pflag.NewFlagSet("voxhall-echo-bot", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a YAML config file")
	flagSet.StringVar(&room, "room", "general", "room to join and echo in")
	flagSet.BoolVar(&verbose, "verbose", false, "enable debug logging")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	tr := transport.NewMemoryTransport()
	seedServer(tr, room)

	bot, err := driver.New(driver.Options{
		Transport: tr,
		Config:    cfg,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	ctx := context.Background()

	// The memory transport signals readiness only when told to; a real
	// transport would emit this when the server accepts the session.
	// The journal shows when the driver has opened the connection and
	// its event handlers are in place.
	go func() {
		for !slices.Contains(tr.Journal(), "connect") {
			time.Sleep(time.Millisecond)
		}
		tr.EmitEvent(transport.EventConnected)
	}()
	if err := bot.Connect(ctx); err != nil {
		return err
	}

	if _, err := bot.Login(ctx, nil); err != nil {
		return err
	}

	roomID, err := bot.GetRoomID(ctx, room)
	if err != nil {
		return err
	}
	if err := bot.JoinRoom(ctx, roomID); err != nil {
		return err
	}

	if _, err := bot.SubscribeToMessages(ctx); err != nil {
		return err
	}
	err = bot.ReactToMessages(func(message *driver.Message, meta json.RawMessage, err error) {
		if err != nil {
			logger.Warn("dropping malformed message", "error", err)
			return
		}
		if message.Sender != nil && message.Sender.Username == cfg.Username {
			return
		}
		logger.Info("message", "room", message.RoomID, "from", senderName(message), "text", message.Text)
		if _, err := bot.SendMessage(ctx, driver.NewTextMessage(message.RoomID, "echo: "+message.Text)); err != nil {
			logger.Error("echo failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	injectMessages(tr, roomID)

	if err := bot.Disconnect(ctx); err != nil {
		return err
	}

	for _, entry := range tr.Journal() {
		fmt.Println(entry)
	}
	return nil
}

func senderName(message *driver.Message) string {
	if message.Sender == nil {
		return "?"
	}
	return message.Sender.Username
}

// seedServer registers the method handlers the bot will call.
func seedServer(tr *transport.MemoryTransport, room string) {
	roomID := "room-" + room
	tr.HandleMethod("getRoomIdByNameOrId", func(args ...any) (json.RawMessage, error) {
		return json.Marshal(roomID)
	})
	tr.HandleMethod("getRoomNameById", func(args ...any) (json.RawMessage, error) {
		return json.Marshal(room)
	})
	tr.HandleMethod("joinRoom", func(args ...any) (json.RawMessage, error) {
		return json.RawMessage(`true`), nil
	})
	tr.HandleMethod("sendMessage", func(args ...any) (json.RawMessage, error) {
		if message, ok := args[0].(*driver.Message); ok {
			fmt.Printf("-> [%s] %s\n", message.RoomID, message.Text)
		}
		return json.RawMessage(`{"_id":"sent"}`), nil
	})
}

// injectMessages pushes a scripted conversation through the reactive
// message feed, as a server would on real traffic.
func injectMessages(tr *transport.MemoryTransport, roomID string) {
	feed := tr.MessageCollection(driver.MessageStreamTopic)
	for i, text := range []string{"hello bot", "how are you?"} {
		id := fmt.Sprintf("msg-%d", i+1)
		payload, _ := json.Marshal(driver.Message{
			ID:     id,
			RoomID: roomID,
			Text:   text,
			Sender: &driver.User{ID: "u-alice", Username: "alice"},
		})
		feed.SetRecord(transport.Record{ID: id, Args: []json.RawMessage{payload}})
		feed.EmitChange(id)
	}
}
