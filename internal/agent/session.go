package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

func (a *Agent) runSession(ctx context.Context) error {
	conn, response, err := a.dialer.DialContext(ctx, a.cfg.WebSocketURL, a.headers())
	if err != nil {
		if response != nil {
			return fmt.Errorf("websocket dial (http %d): %w", response.StatusCode, err)
		}
		return err
	}
	defer func() {
		_ = conn.Close()
	}()

	a.logger.Info().Str("url", a.cfg.WebSocketURL).Msg("websocket connected")

	if err = conn.WriteJSON(OutgoingMessage{
		Type:      "auth",
		AgentID:   a.cfg.AgentID,
		Status:    "online",
		Timestamp: now(),
		Data: map[string]any{
			"device_name": a.cfg.DeviceName,
			"printer":     a.printer.Status(),
		},
	}); err != nil {
		return err
	}

	heartbeatTicker := time.NewTicker(a.heartbeatEvery())
	defer heartbeatTicker.Stop()

	readErrors := make(chan error, 1)
	readMessages := make(chan IncomingMessage, 8)

	go func() {
		for {
			var message IncomingMessage
			if readErr := conn.ReadJSON(&message); readErr != nil {
				readErrors <- readErr
				return
			}

			select {
			case readMessages <- message:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteJSON(OutgoingMessage{Type: "status", AgentID: a.cfg.AgentID, Status: "offline"})
			return context.Canceled
		case err = <-readErrors:
			return err
		case message := <-readMessages:
			if err = a.handleIncoming(ctx, conn, message); err != nil {
				return err
			}
		case <-heartbeatTicker.C:
			if err = conn.WriteJSON(OutgoingMessage{
				Type:      "heartbeat",
				AgentID:   a.cfg.AgentID,
				Timestamp: now(),
				Status:    "online",
				Data:      map[string]any{"printer": a.printer.Status()},
			}); err != nil {
				return err
			}
		}
	}
}

func (a *Agent) handleIncoming(ctx context.Context, conn *websocket.Conn, message IncomingMessage) error {
	messageType := strings.ToLower(strings.TrimSpace(message.Type))
	commandName := strings.ToLower(strings.TrimSpace(message.Command))

	switch {
	case messageType == "ping" || commandName == "ping":
		return conn.WriteJSON(OutgoingMessage{
			Type:      "pong",
			AgentID:   a.cfg.AgentID,
			Timestamp: now(),
			JobID:     message.JobID,
		})

	case messageType == "command":
		result, err := a.executeCommand(ctx, commandName, message.Payload)
		out := OutgoingMessage{
			Type:      "command_result",
			AgentID:   a.cfg.AgentID,
			JobID:     message.JobID,
			Timestamp: now(),
			Data:      result,
		}

		if err != nil {
			out.Status = "failed"
			out.Error = err.Error()
		} else {
			out.Status = "completed"
		}

		a.logResult(message.JobID, err)
		return conn.WriteJSON(out)
	}

	a.logger.Debug().Str("type", messageType).Msg("ignoring message")
	return nil
}
