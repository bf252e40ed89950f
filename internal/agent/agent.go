// Package agent keeps the print agent attached to the POS backend: a
// WebSocket session when one is configured, HTTP polling otherwise or as a
// fallback, both dispatching the same printer commands.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/NowakAdmin/PosPrintAgent/internal/compose"
	"github.com/NowakAdmin/PosPrintAgent/internal/config"
	"github.com/NowakAdmin/PosPrintAgent/internal/printer"
	"github.com/NowakAdmin/PosPrintAgent/internal/service"
)

// Printer is the part of service.Service the agent drives.
type Printer interface {
	PrintLabel(ctx context.Context, rec compose.Record) (service.JobResult, error)
	PrintBatch(ctx context.Context, recs []compose.Record) (service.JobResult, error)
	PrintReceiptText(ctx context.Context, text string) (service.JobResult, error)
	ListDevices(ctx context.Context) ([]printer.Device, error)
	Pair(ctx context.Context, address string) error
	Disconnect(ctx context.Context)
	Status() printer.ConnectionState
}

type IncomingMessage struct {
	Type    string          `json:"type"`
	JobID   string          `json:"job_id,omitempty"`
	Command string          `json:"command,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type OutgoingMessage struct {
	Type      string         `json:"type"`
	AgentID   string         `json:"agent_id,omitempty"`
	JobID     string         `json:"job_id,omitempty"`
	Status    string         `json:"status,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
}

const (
	defaultPollEvery     = 2 * time.Second
	defaultFallbackSpell = 45 * time.Second
	maxBackoff           = 20 * time.Second
)

type Agent struct {
	cfg     *config.Config
	printer Printer
	logger  zerolog.Logger

	client        *http.Client
	dialer        *websocket.Dialer
	pollEvery     time.Duration
	fallbackSpell time.Duration

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(cfg *config.Config, p Printer, logger zerolog.Logger) *Agent {
	return &Agent{
		cfg:           cfg,
		printer:       p,
		logger:        logger.With().Str("component", "agent").Logger(),
		client:        &http.Client{Timeout: 30 * time.Second},
		dialer:        websocket.DefaultDialer,
		pollEvery:     defaultPollEvery,
		fallbackSpell: defaultFallbackSpell,
	}
}

func (a *Agent) Start(parent context.Context) error {
	if a.running.Swap(true) {
		return nil
	}

	ctx, cancel := context.WithCancel(parent)
	a.cancel = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.loop(ctx)
	}()

	return nil
}

func (a *Agent) Stop() {
	if !a.running.Load() {
		return
	}

	if a.cancel != nil {
		a.cancel()
	}

	a.wg.Wait()
	a.running.Store(false)
}

func (a *Agent) IsRunning() bool {
	return a.running.Load()
}

func (a *Agent) loop(ctx context.Context) {
	if strings.TrimSpace(a.cfg.AgentToken) == "" {
		a.logger.Warn().Msg("agent token missing, run: posprint-agent configure --token=...")
		<-ctx.Done()
		return
	}

	if strings.TrimSpace(a.cfg.ServerURL) == "" && strings.TrimSpace(a.cfg.WebSocketURL) == "" {
		a.logger.Warn().Msg("neither server_url nor websocket_url is set, run: posprint-agent configure ...")
		<-ctx.Done()
		return
	}

	backoff := 1 * time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var err error
		if strings.TrimSpace(a.cfg.WebSocketURL) != "" {
			err = a.runSession(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn().Err(err).Msg("websocket session ended")
			}

			if ctx.Err() != nil {
				return
			}

			if strings.TrimSpace(a.cfg.ServerURL) != "" {
				a.logger.Info().Dur("for", a.fallbackSpell).Msg("falling back to HTTP polling")
				err = a.runHTTPPolling(ctx, a.fallbackSpell)
			}
		} else {
			err = a.runHTTPPolling(ctx, 0)
		}

		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error().Err(err).Msg("agent loop iteration failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

func (a *Agent) heartbeatEvery() time.Duration {
	if a.cfg.HeartbeatSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(a.cfg.HeartbeatSeconds) * time.Second
}

func (a *Agent) headers() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+a.cfg.AgentToken)
	h.Set("X-Agent-ID", a.cfg.AgentID)
	h.Set("X-Agent-Name", a.cfg.DeviceName)
	if strings.TrimSpace(a.cfg.TenantID) != "" {
		h.Set("X-Tenant-ID", a.cfg.TenantID)
	}
	return h
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
