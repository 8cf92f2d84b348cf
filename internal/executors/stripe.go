package executors

import (
	"context"
	"net/http"
	"time"
)

// StripePayoutExecutor moves funds to a tokenized card via an instant-payout
// API. The card token comes from the saved payment method's external token.
type StripePayoutExecutor struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewStripePayoutExecutor(baseURL, apiKey string, timeout time.Duration) *StripePayoutExecutor {
	return &StripePayoutExecutor{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  defaultClient(timeout),
	}
}

func (e *StripePayoutExecutor) Name() string { return "stripe" }
func (e *StripePayoutExecutor) Live() bool   { return true }

func (e *StripePayoutExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	payload := map[string]any{
		"amount":      req.Amount,
		"currency":    req.Currency,
		"destination": req.Destination["token"],
		"method":      "instant",
		"metadata":    map[string]string{"account_id": req.AccountID},
	}

	var resp struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		FailureReason string `json:"failure_message"`
	}
	if err := e.do(ctx, "/v1/payouts", req.Reference, payload, &resp); err != nil {
		return nil, err
	}

	if resp.Status == "failed" || resp.Status == "canceled" {
		return &Result{ExternalReference: resp.ID, FailureReason: resp.FailureReason}, nil
	}
	return &Result{ExternalReference: resp.ID, Succeeded: true}, nil
}

func (e *StripePayoutExecutor) do(ctx context.Context, path, reference string, payload, out any) error {
	return postJSON(ctx, e.client, e.baseURL+path, reference, e.apiKey, payload, out)
}
