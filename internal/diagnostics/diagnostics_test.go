package diagnostics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atomikpanda/nixup/internal/executor"
	"github.com/atomikpanda/nixup/internal/plan"
	"github.com/atomikpanda/nixup/internal/reverter"
)

// allowedFields is the closed diagnostic field set. Anything beyond this
// list leaving the machine is a bug, not a feature.
var allowedFields = map[string]bool{
	"version":             true,
	"planner":             true,
	"configured_settings": true,
	"os_name":             true,
	"os_version":          true,
	"triple":              true,
	"is_ci":               true,
	"action":              true,
	"status":              true,
	"failure_variant":     true,
}

func baseReport() Report {
	return Report{
		Version:            "0.4.0",
		Planner:            "linux-multi",
		ConfiguredSettings: []string{"nix-build-user-count"},
		OSName:             "linux",
		OSVersion:          "Ubuntu 24.04",
		Triple:             "x86_64-unknown-linux-gnu",
	}
}

func TestSendPayloadStaysInsideAllowList(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, baseReport())
	c.Send(context.Background(), Install, Failure, "action_execute")

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	for name := range fields {
		if !allowedFields[name] {
			t.Errorf("field %q is not in the closed allow-list", name)
		}
	}
	if fields["action"] != "Install" || fields["status"] != "Failure" {
		t.Errorf("payload = %v", fields)
	}

	// configured_settings carries names only.
	settings, ok := fields["configured_settings"].([]any)
	if !ok {
		t.Fatalf("configured_settings = %T", fields["configured_settings"])
	}
	for _, s := range settings {
		if s != "nix-build-user-count" {
			t.Errorf("configured_settings entry = %v, want the setting name only", s)
		}
	}
}

func TestEmptyEndpointDisablesReporting(t *testing.T) {
	c := NewClient("", baseReport())
	if c != nil {
		t.Fatal("empty endpoint must produce a nil client")
	}
	// A nil client sends nothing and does not panic.
	c.Send(context.Background(), Install, Success, "")
}

func TestSendSwallowsNetworkErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close() // connection refused from here on

	c := NewClient(url, baseReport())
	c.Send(context.Background(), Install, Failure, "other") // must not panic or block
}

func TestSendSwallowsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, baseReport())
	c.Send(context.Background(), Install, Success, "")
}

func TestVariant(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{context.Canceled, "cancelled"},
		{&executor.ExecuteError{Err: errors.New("x")}, "action_execute"},
		{&reverter.RevertError{Err: errors.New("x")}, "action_revert"},
		{&plan.VersionMismatchError{Receipt: "1.0.0", Binary: "0.4.0"}, "version_mismatch"},
		{errors.New("mystery"), "other"},
	}
	for _, c := range cases {
		if got := Variant(c.err); got != c.want {
			t.Errorf("Variant(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}
