package executors

import (
	"context"
	"net/http"
	"time"
)

// CrossBorderExecutor executes remittances through a cross-border transfer
// provider. Destination carries the recipient country, bank code and account
// number; the provider owns FX conversion.
type CrossBorderExecutor struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewCrossBorderExecutor(baseURL, apiKey string, timeout time.Duration) *CrossBorderExecutor {
	return &CrossBorderExecutor{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  defaultClient(timeout),
	}
}

func (e *CrossBorderExecutor) Name() string { return "crossborder" }
func (e *CrossBorderExecutor) Live() bool   { return true }

func (e *CrossBorderExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	payload := map[string]any{
		"clientReference": req.Reference,
		"sourceAmount":    req.Amount,
		"sourceCurrency":  req.Currency,
		"recipient": map[string]any{
			"country":       req.Destination["country"],
			"bankCode":      req.Destination["bankCode"],
			"accountNumber": req.Destination["accountNumber"],
			"name":          req.Destination["name"],
		},
	}

	var resp struct {
		RemittanceID string `json:"remittanceId"`
		Status       string `json:"status"`
		ErrorDetail  string `json:"errorDetail"`
	}
	if err := postJSON(ctx, e.client, e.baseURL+"/remittances", req.Reference, e.apiKey, payload, &resp); err != nil {
		return nil, err
	}

	if resp.Status == "REJECTED" || resp.Status == "FAILED" {
		return &Result{ExternalReference: resp.RemittanceID, FailureReason: resp.ErrorDetail}, nil
	}
	return &Result{ExternalReference: resp.RemittanceID, Succeeded: true}, nil
}
