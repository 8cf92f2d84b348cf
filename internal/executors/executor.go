package executors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vaultpay/backend/internal/models"
)

// ErrUnknownExecutor is returned by the registry for an unconfigured rail.
var ErrUnknownExecutor = errors.New("unknown transfer executor")

// Request describes one logical money movement on an external rail.
// Reference is the idempotency key: it is derived from the transaction record
// id, never from the clock, so a retried Execute with the same Reference must
// not move money twice.
type Request struct {
	Reference   string
	AccountID   string
	Amount      int64 // in cents
	Currency    string
	Destination models.Metadata
}

// Result is the rail's verdict. Succeeded false with a FailureReason is a
// definitive failure; a transport error from Execute means the outcome is
// unknown and the caller must reconcile.
type Result struct {
	ExternalReference string
	Succeeded         bool
	FailureReason     string
}

// TransferExecutor is the boundary to any external money-movement rail.
// Implementations must be idempotent per Request.Reference: re-executing a
// settled reference returns the prior outcome without moving money again.
type TransferExecutor interface {
	Name() string
	// Live reports whether the executor moves real money. The sandbox
	// executor returns false; it exists so demos never fake success on a
	// live rail.
	Live() bool
	Execute(ctx context.Context, req Request) (*Result, error)
}

// Registry holds the configured executors keyed by name.
type Registry struct {
	executors map[string]TransferExecutor
}

func NewRegistry(executors ...TransferExecutor) *Registry {
	r := &Registry{executors: make(map[string]TransferExecutor)}
	for _, e := range executors {
		r.executors[e.Name()] = e
	}
	return r
}

func (r *Registry) Get(name string) (TransferExecutor, error) {
	e, ok := r.executors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownExecutor, name)
	}
	return e, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.executors))
	for name := range r.executors {
		names = append(names, name)
	}
	return names
}

// postJSON sends a JSON payload with the idempotency reference header and
// decodes the JSON response into out.
func postJSON(ctx context.Context, client *http.Client, url, reference, apiKey string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", reference)
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("rail returned status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func defaultClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
