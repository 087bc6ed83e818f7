// Package diagnostics posts best-effort install telemetry. The payload is a
// closed allow-list of coarse facts; setting values never leave the machine,
// only the names of settings the operator overrode. Reporting failures are
// swallowed: telemetry must never affect the install result.
package diagnostics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/atomikpanda/nixup/internal/executor"
	"github.com/atomikpanda/nixup/internal/plan"
	"github.com/atomikpanda/nixup/internal/receipt"
	"github.com/atomikpanda/nixup/internal/reverter"
)

// Action is the operation a report describes.
type Action string

const (
	Install   Action = "Install"
	Uninstall Action = "Uninstall"
)

// Status is the outcome a report describes.
type Status string

const (
	Success   Status = "Success"
	Failure   Status = "Failure"
	Pending   Status = "Pending"
	Cancelled Status = "Cancelled"
)

// Report is the complete diagnostic payload. Every field is part of the
// closed allow-list; adding a field here is a privacy decision, not a
// convenience.
type Report struct {
	Version            string   `json:"version"`
	Planner            string   `json:"planner"`
	ConfiguredSettings []string `json:"configured_settings"`
	OSName             string   `json:"os_name"`
	OSVersion          string   `json:"os_version"`
	Triple             string   `json:"triple"`
	IsCI               bool     `json:"is_ci"`
	Action             Action   `json:"action"`
	Status             Status   `json:"status"`
	FailureVariant     string   `json:"failure_variant,omitempty"`
}

// SendTimeout bounds every diagnostic POST.
const SendTimeout = 3 * time.Second

// Client sends reports to a fixed endpoint. A nil Client is valid and sends
// nothing, which is how an empty endpoint disables all reporting.
type Client struct {
	endpoint string
	http     *http.Client
	base     Report
	log      *slog.Logger
}

// NewClient returns a Client for endpoint with base pre-filled host facts,
// or nil when endpoint is empty.
func NewClient(endpoint string, base Report) *Client {
	if endpoint == "" {
		return nil
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: SendTimeout},
		base:     base,
		log:      slog.Default(),
	}
}

// Send posts one report. Network errors, timeouts, and non-2xx responses
// are logged at debug level and otherwise ignored.
func (c *Client) Send(ctx context.Context, action Action, status Status, failureVariant string) {
	if c == nil {
		return
	}
	report := c.base
	report.Action = action
	report.Status = status
	report.FailureVariant = failureVariant

	body, err := json.Marshal(report)
	if err != nil {
		c.log.Debug("diagnostics: marshal failed", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), SendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		c.log.Debug("diagnostics: request failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("diagnostics: send failed", "error", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Debug("diagnostics: non-2xx response", "status", resp.StatusCode)
	}
}

// Variant maps an error to the coarse failure category recorded in
// failure_variant. The categories match the installer's error taxonomy and
// carry no detail about the host.
func Variant(err error) string {
	var (
		execErr    *executor.ExecuteError
		revertErr  *reverter.RevertError
		versionErr *plan.VersionMismatchError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.As(err, &execErr):
		return "action_execute"
	case errors.As(err, &revertErr):
		return "action_revert"
	case errors.As(err, &versionErr):
		return "version_mismatch"
	case errors.Is(err, receipt.ErrNoReceipt), errors.Is(err, receipt.ErrLocked):
		return "receipt_io"
	default:
		return "other"
	}
}
