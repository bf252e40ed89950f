package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const apiPrefix = "/api/posprint/agent"

type pullCommandsResponse struct {
	Success bool              `json:"success"`
	Data    []IncomingMessage `json:"data"`
}

// runHTTPPolling pulls commands until ctx ends, a request fails or, when
// maxDuration is set, that much time has passed.
func (a *Agent) runHTTPPolling(ctx context.Context, maxDuration time.Duration) error {
	if strings.TrimSpace(a.cfg.ServerURL) == "" {
		return fmt.Errorf("server_url is required for HTTP polling")
	}

	pollTicker := time.NewTicker(a.pollEvery)
	heartbeatTicker := time.NewTicker(a.heartbeatEvery())
	defer pollTicker.Stop()
	defer heartbeatTicker.Stop()

	if err := a.heartbeat(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("HTTP heartbeat failed")
	}

	var timeout <-chan time.Time
	if maxDuration > 0 {
		timer := time.NewTimer(maxDuration)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case <-timeout:
			return nil
		case <-heartbeatTicker.C:
			if err := a.heartbeat(ctx); err != nil {
				a.logger.Warn().Err(err).Msg("HTTP heartbeat failed")
			}
		case <-pollTicker.C:
			commands, err := a.pullCommands(ctx)
			if err != nil {
				return err
			}

			for _, message := range commands {
				result, execErr := a.executeCommand(ctx, message.Command, message.Payload)
				if reportErr := a.reportCommandResult(ctx, message.JobID, result, execErr); reportErr != nil {
					a.logger.Error().Err(reportErr).Str("job_id", message.JobID).Msg("reporting command result failed")
				}
			}
		}
	}
}

func (a *Agent) heartbeat(ctx context.Context) error {
	body, err := json.Marshal(map[string]any{
		"status":  "online",
		"printer": a.printer.Status(),
	})
	if err != nil {
		return err
	}

	request, err := a.newAPIRequest(ctx, http.MethodPost, apiPrefix+"/heartbeat", bytes.NewReader(body))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := a.client.Do(request)
	if err != nil {
		return err
	}
	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode >= 300 {
		body, _ := io.ReadAll(response.Body)
		return fmt.Errorf("heartbeat status %d: %s", response.StatusCode, strings.TrimSpace(string(body)))
	}

	return nil
}

func (a *Agent) pullCommands(ctx context.Context) ([]IncomingMessage, error) {
	request, err := a.newAPIRequest(ctx, http.MethodGet, apiPrefix+"/commands/next?limit=5", nil)
	if err != nil {
		return nil, err
	}

	response, err := a.client.Do(request)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode >= 300 {
		body, _ := io.ReadAll(response.Body)
		return nil, fmt.Errorf("pull commands status %d: %s", response.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed pullCommandsResponse
	if err = json.NewDecoder(response.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	if !parsed.Success {
		return nil, fmt.Errorf("pull commands returned success=false")
	}

	return parsed.Data, nil
}

func (a *Agent) reportCommandResult(ctx context.Context, jobID string, result map[string]any, execErr error) error {
	if strings.TrimSpace(jobID) == "" {
		return fmt.Errorf("command has no job_id")
	}

	payload := map[string]any{}
	if execErr != nil {
		payload["status"] = "failed"
		payload["error"] = execErr.Error()
		payload["result"] = result
	} else {
		payload["status"] = "completed"
		payload["result"] = result
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	request, err := a.newAPIRequest(ctx, http.MethodPost, apiPrefix+"/commands/"+jobID+"/result", bytes.NewReader(body))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := a.client.Do(request)
	if err != nil {
		return err
	}
	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(response.Body)
		return fmt.Errorf("report result status %d: %s", response.StatusCode, strings.TrimSpace(string(responseBody)))
	}

	a.logResult(jobID, execErr)
	return nil
}

func (a *Agent) newAPIRequest(ctx context.Context, method string, path string, body io.Reader) (*http.Request, error) {
	base := strings.TrimRight(strings.TrimSpace(a.cfg.ServerURL), "/")
	if base == "" {
		return nil, fmt.Errorf("server_url is empty")
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	request, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return nil, err
	}

	request.Header = a.headers()
	return request, nil
}

func (a *Agent) logResult(jobID string, execErr error) {
	if execErr != nil {
		a.logger.Warn().Err(execErr).Str("job_id", jobID).Msg("job failed")
		return
	}
	a.logger.Info().Str("job_id", jobID).Msg("job completed")
}
