package executors

import (
	"context"
	"net/http"
	"time"
)

// CashWalletExecutor pays out to a mobile cash-wallet aggregator. The
// destination holds the recipient's wallet handle (cashtag).
type CashWalletExecutor struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewCashWalletExecutor(baseURL, apiKey string, timeout time.Duration) *CashWalletExecutor {
	return &CashWalletExecutor{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  defaultClient(timeout),
	}
}

func (e *CashWalletExecutor) Name() string { return "cashwallet" }
func (e *CashWalletExecutor) Live() bool   { return true }

func (e *CashWalletExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	payload := map[string]any{
		"reference": req.Reference,
		"cashtag":   req.Destination["cashtag"],
		"amount":    req.Amount,
		"currency":  req.Currency,
	}

	var resp struct {
		TransferID string `json:"transferId"`
		State      string `json:"state"`
		Reason     string `json:"reason"`
	}
	if err := postJSON(ctx, e.client, e.baseURL+"/transfers", req.Reference, e.apiKey, payload, &resp); err != nil {
		return nil, err
	}

	if resp.State != "SETTLED" && resp.State != "ACCEPTED" {
		return &Result{ExternalReference: resp.TransferID, FailureReason: resp.Reason}, nil
	}
	return &Result{ExternalReference: resp.TransferID, Succeeded: true}, nil
}
