package executors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vaultpay/backend/internal/models"
)

func TestStripePayoutExecutor_Execute(t *testing.T) {
	t.Run("successful payout", func(t *testing.T) {
		var gotAuth, gotKey string

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotKey = r.Header.Get("Idempotency-Key")
			assert.Equal(t, "/v1/payouts", r.URL.Path)

			json.NewEncoder(w).Encode(map[string]string{
				"id":     "po_123",
				"status": "paid",
			})
		}))
		defer server.Close()

		exec := NewStripePayoutExecutor(server.URL, "sk_test_abc", 5*time.Second)
		res, err := exec.Execute(context.Background(), Request{
			Reference:   "tx-1",
			AccountID:   "1234567890",
			Amount:      3850,
			Currency:    "USD",
			Destination: models.Metadata{"token": "card_xyz"},
		})

		assert.NoError(t, err)
		assert.True(t, res.Succeeded)
		assert.Equal(t, "po_123", res.ExternalReference)
		assert.Equal(t, "Bearer sk_test_abc", gotAuth)
		assert.Equal(t, "tx-1", gotKey)
	})

	t.Run("failed payout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{
				"id":              "po_124",
				"status":          "failed",
				"failure_message": "could not process payout",
			})
		}))
		defer server.Close()

		exec := NewStripePayoutExecutor(server.URL, "sk_test_abc", 5*time.Second)
		res, err := exec.Execute(context.Background(), Request{Reference: "tx-2", Amount: 1000, Currency: "USD"})

		assert.NoError(t, err)
		assert.False(t, res.Succeeded)
		assert.Equal(t, "could not process payout", res.FailureReason)
	})
}

func TestCashWalletExecutor_Execute(t *testing.T) {
	t.Run("settled transfer", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/transfers", r.URL.Path)
			json.NewEncoder(w).Encode(map[string]string{
				"transferId": "cw_55",
				"state":      "SETTLED",
			})
		}))
		defer server.Close()

		exec := NewCashWalletExecutor(server.URL, "key", 5*time.Second)
		res, err := exec.Execute(context.Background(), Request{
			Reference:   "tx-3",
			Amount:      2000,
			Currency:    "USD",
			Destination: models.Metadata{"cashtag": "$jane"},
		})

		assert.NoError(t, err)
		assert.True(t, res.Succeeded)
		assert.Equal(t, "cw_55", res.ExternalReference)
	})

	t.Run("declined transfer", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{
				"transferId": "cw_56",
				"state":      "DECLINED",
				"reason":     "recipient not found",
			})
		}))
		defer server.Close()

		exec := NewCashWalletExecutor(server.URL, "key", 5*time.Second)
		res, err := exec.Execute(context.Background(), Request{Reference: "tx-4", Amount: 2000, Currency: "USD"})

		assert.NoError(t, err)
		assert.False(t, res.Succeeded)
		assert.Equal(t, "recipient not found", res.FailureReason)
	})
}

func TestCrossBorderExecutor_Execute(t *testing.T) {
	t.Run("accepted remittance", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/remittances", r.URL.Path)
			json.NewEncoder(w).Encode(map[string]string{
				"remittanceId": "rm_9",
				"status":       "ACCEPTED",
			})
		}))
		defer server.Close()

		exec := NewCrossBorderExecutor(server.URL, "key", 5*time.Second)
		res, err := exec.Execute(context.Background(), Request{
			Reference: "tx-5",
			Amount:    5000,
			Currency:  "USD",
			Destination: models.Metadata{
				"country":       "MX",
				"bankCode":      "BMXMXMM",
				"accountNumber": "0012345678",
				"name":          "Juan Perez",
			},
		})

		assert.NoError(t, err)
		assert.True(t, res.Succeeded)
		assert.Equal(t, "rm_9", res.ExternalReference)
	})

	t.Run("rejected remittance", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{
				"remittanceId": "rm_10",
				"status":       "REJECTED",
				"errorDetail":  "sanctions screening",
			})
		}))
		defer server.Close()

		exec := NewCrossBorderExecutor(server.URL, "key", 5*time.Second)
		res, err := exec.Execute(context.Background(), Request{Reference: "tx-6", Amount: 5000, Currency: "USD"})

		assert.NoError(t, err)
		assert.False(t, res.Succeeded)
		assert.Equal(t, "sanctions screening", res.FailureReason)
	})
}
