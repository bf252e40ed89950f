package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NowakAdmin/PosPrintAgent/internal/compose"
	"github.com/NowakAdmin/PosPrintAgent/internal/config"
	"github.com/NowakAdmin/PosPrintAgent/internal/printer"
	"github.com/NowakAdmin/PosPrintAgent/internal/service"
)

type fakePrinter struct {
	mu       sync.Mutex
	labels   []compose.Record
	batches  [][]compose.Record
	receipts []string
	paired   string
	err      error
}

func (f *fakePrinter) PrintLabel(_ context.Context, rec compose.Record) (service.JobResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return service.JobResult{}, f.err
	}
	f.labels = append(f.labels, rec)
	return service.JobResult{JobID: "p-1", Kind: service.JobLabel, Bytes: 42, Labels: 1}, nil
}

func (f *fakePrinter) PrintBatch(_ context.Context, recs []compose.Record) (service.JobResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, recs)
	return service.JobResult{
		JobID:   "p-2",
		Kind:    service.JobBatch,
		Bytes:   100,
		Labels:  len(recs) - 1,
		Skipped: []service.SkippedRecord{{Index: 0, Reason: "no barcode"}},
	}, nil
}

func (f *fakePrinter) PrintReceiptText(_ context.Context, text string) (service.JobResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts = append(f.receipts, text)
	return service.JobResult{JobID: "p-3", Kind: service.JobReceipt, Bytes: len(text)}, nil
}

func (f *fakePrinter) ListDevices(context.Context) ([]printer.Device, error) {
	return []printer.Device{{Address: "COM7", Name: "MTP-II", Paired: true}}, nil
}

func (f *fakePrinter) Pair(_ context.Context, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paired = address
	return nil
}

func (f *fakePrinter) Disconnect(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paired = ""
}

func (f *fakePrinter) Status() printer.ConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.paired == "" {
		return printer.ConnectionState{PhaseName: "disconnected"}
	}
	return printer.ConnectionState{Phase: printer.Connected, PhaseName: "connected", PairedAddress: f.paired, Connected: true}
}

func newTestAgent(cfg *config.Config, p Printer) *Agent {
	a := New(cfg, p, zerolog.Nop())
	a.pollEvery = 10 * time.Millisecond
	return a
}

func TestExecuteCommands(t *testing.T) {
	p := &fakePrinter{}
	a := newTestAgent(config.Default(), p)
	ctx := context.Background()

	res, err := a.executeCommand(ctx, " PRINT_LABEL ", json.RawMessage(`{"name":"Milk","barcode":"5901234123457"}`))
	require.NoError(t, err)
	assert.Equal(t, "p-1", res["print_job_id"])
	assert.Equal(t, []compose.Record{{Name: "Milk", Barcode: "5901234123457"}}, p.labels)

	res, err = a.executeCommand(ctx, CommandPrintBatch, json.RawMessage(`{"records":[{"name":"A"},{"name":"B","barcode":"123"}]}`))
	require.NoError(t, err)
	assert.Equal(t, 1, res["labels"])
	assert.NotNil(t, res["skipped"])

	_, err = a.executeCommand(ctx, CommandPrintReceipt, json.RawMessage(`{"text":"TOTAL 9.99\n"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"TOTAL 9.99\n"}, p.receipts)

	res, err = a.executeCommand(ctx, CommandListPrinters, nil)
	require.NoError(t, err)
	assert.Len(t, res["devices"], 1)

	res, err = a.executeCommand(ctx, CommandConnectPrinter, json.RawMessage(`{"address":"COM7"}`))
	require.NoError(t, err)
	assert.Equal(t, "COM7", res["printer"].(printer.ConnectionState).PairedAddress)

	res, err = a.executeCommand(ctx, CommandDisconnectPrinter, nil)
	require.NoError(t, err)
	assert.False(t, res["printer"].(printer.ConnectionState).Connected)

	_, err = a.executeCommand(ctx, CommandPrinterStatus, nil)
	require.NoError(t, err)
}

func TestExecuteCommandErrors(t *testing.T) {
	p := &fakePrinter{err: &printer.Error{Kind: printer.NotConnected, Op: "transmit"}}
	a := newTestAgent(config.Default(), p)
	ctx := context.Background()

	res, err := a.executeCommand(ctx, CommandPrintLabel, json.RawMessage(`{"name":"x","barcode":"1"}`))
	require.Error(t, err)
	assert.Equal(t, "not_connected", res["error_kind"])
	assert.Equal(t, false, res["retryable"])

	_, err = a.executeCommand(ctx, CommandPrintLabel, nil)
	assert.Error(t, err)

	_, err = a.executeCommand(ctx, CommandConnectPrinter, json.RawMessage(`{"address":" "}`))
	assert.Error(t, err)

	_, err = a.executeCommand(ctx, "weigh_and_print", nil)
	assert.ErrorContains(t, err, "unsupported command")
}

func TestHTTPPollingRunsCommands(t *testing.T) {
	results := make(chan map[string]any, 1)
	var served sync.Once

	mux := http.NewServeMux()
	mux.HandleFunc(apiPrefix+"/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc(apiPrefix+"/commands/next", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		resp := pullCommandsResponse{Success: true}
		served.Do(func() {
			resp.Data = []IncomingMessage{{
				Type:    "command",
				JobID:   "job-7",
				Command: CommandPrintLabel,
				Payload: json.RawMessage(`{"name":"Bread","barcode":"96385074"}`),
			}}
		})
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc(apiPrefix+"/commands/job-7/result", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		results <- body
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := config.Default()
	cfg.ServerURL = srv.URL
	cfg.AgentToken = "tok"

	p := &fakePrinter{}
	a := newTestAgent(cfg, p)
	require.NoError(t, a.Start(context.Background()))
	defer a.Stop()

	select {
	case body := <-results:
		assert.Equal(t, "completed", body["status"])
		result := body["result"].(map[string]any)
		assert.Equal(t, "p-1", result["print_job_id"])
	case <-time.After(5 * time.Second):
		t.Fatal("no command result reported")
	}

	assert.True(t, a.IsRunning())
}

func TestWebSocketSession(t *testing.T) {
	upgrader := websocket.Upgrader{}
	results := make(chan OutgoingMessage, 1)
	auth := make(chan OutgoingMessage, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "agent-1", r.Header.Get("X-Agent-ID"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var first OutgoingMessage
		if err = conn.ReadJSON(&first); err != nil {
			return
		}
		auth <- first

		_ = conn.WriteJSON(IncomingMessage{
			Type:    "command",
			JobID:   "job-9",
			Command: CommandPrintReceipt,
			Payload: json.RawMessage(`{"text":"hello"}`),
		})

		for {
			var msg OutgoingMessage
			if err = conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type == "command_result" {
				results <- msg
			}
		}
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.WebSocketURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	cfg.AgentToken = "tok"
	cfg.AgentID = "agent-1"

	p := &fakePrinter{}
	a := newTestAgent(cfg, p)
	require.NoError(t, a.Start(context.Background()))
	defer a.Stop()

	select {
	case msg := <-auth:
		assert.Equal(t, "auth", msg.Type)
		assert.Equal(t, "online", msg.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("no auth message")
	}

	select {
	case msg := <-results:
		assert.Equal(t, "job-9", msg.JobID)
		assert.Equal(t, "completed", msg.Status)
		assert.Equal(t, "p-3", msg.Data["print_job_id"])
	case <-time.After(5 * time.Second):
		t.Fatal("no command result")
	}
}

func TestStartWithoutTokenIdles(t *testing.T) {
	a := newTestAgent(config.Default(), &fakePrinter{})
	require.NoError(t, a.Start(context.Background()))
	assert.True(t, a.IsRunning())
	a.Stop()
	assert.False(t, a.IsRunning())
}
