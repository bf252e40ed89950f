package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/NowakAdmin/PosPrintAgent/internal/compose"
	"github.com/NowakAdmin/PosPrintAgent/internal/service"
)

const (
	CommandPrintLabel        = "print_label"
	CommandPrintBatch        = "print_batch"
	CommandPrintReceipt      = "print_receipt"
	CommandListPrinters      = "list_printers"
	CommandConnectPrinter    = "connect_printer"
	CommandDisconnectPrinter = "disconnect_printer"
	CommandPrinterStatus     = "printer_status"
)

type batchPayload struct {
	Records []compose.Record `json:"records"`
}

type receiptPayload struct {
	Text string `json:"text"`
}

type connectPayload struct {
	Address string `json:"address"`
}

// executeCommand runs one backend command. On failure the returned map still
// carries the user-facing feedback so the backend can show it as is.
func (a *Agent) executeCommand(ctx context.Context, command string, rawPayload json.RawMessage) (map[string]any, error) {
	command = strings.ToLower(strings.TrimSpace(command))

	result, err := a.dispatch(ctx, command, rawPayload)
	if err != nil {
		fb := service.Explain(err)
		if result == nil {
			result = map[string]any{}
		}
		result["error_kind"] = fb.Kind
		result["message"] = fb.Message
		result["retryable"] = fb.Retryable
		return result, err
	}
	return result, nil
}

func (a *Agent) dispatch(ctx context.Context, command string, rawPayload json.RawMessage) (map[string]any, error) {
	switch command {
	case "ping":
		return map[string]any{"pong": true}, nil

	case CommandPrintLabel:
		var rec compose.Record
		if err := decodePayload(rawPayload, &rec); err != nil {
			return nil, err
		}
		res, err := a.printer.PrintLabel(ctx, rec)
		if err != nil {
			return nil, err
		}
		return jobResultData(res), nil

	case CommandPrintBatch:
		var payload batchPayload
		if err := decodePayload(rawPayload, &payload); err != nil {
			return nil, err
		}
		res, err := a.printer.PrintBatch(ctx, payload.Records)
		if err != nil {
			return map[string]any{"skipped": res.Skipped}, err
		}
		return jobResultData(res), nil

	case CommandPrintReceipt:
		var payload receiptPayload
		if err := decodePayload(rawPayload, &payload); err != nil {
			return nil, err
		}
		res, err := a.printer.PrintReceiptText(ctx, payload.Text)
		if err != nil {
			return nil, err
		}
		return jobResultData(res), nil

	case CommandListPrinters:
		devices, err := a.printer.ListDevices(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"devices": devices}, nil

	case CommandConnectPrinter:
		var payload connectPayload
		if err := decodePayload(rawPayload, &payload); err != nil {
			return nil, err
		}
		if strings.TrimSpace(payload.Address) == "" {
			return nil, fmt.Errorf("connect_printer: address is required")
		}
		if err := a.printer.Pair(ctx, strings.TrimSpace(payload.Address)); err != nil {
			return nil, err
		}
		return map[string]any{"printer": a.printer.Status()}, nil

	case CommandDisconnectPrinter:
		a.printer.Disconnect(ctx)
		return map[string]any{"printer": a.printer.Status()}, nil

	case CommandPrinterStatus:
		return map[string]any{"printer": a.printer.Status()}, nil

	default:
		return nil, fmt.Errorf("unsupported command: %q", command)
	}
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("payload is required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

func jobResultData(res service.JobResult) map[string]any {
	data := map[string]any{
		"print_job_id": res.JobID,
		"kind":         res.Kind,
		"bytes":        res.Bytes,
	}
	if res.Labels > 0 {
		data["labels"] = res.Labels
	}
	if len(res.Skipped) > 0 {
		data["skipped"] = res.Skipped
	}
	return data
}
