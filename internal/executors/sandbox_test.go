package executors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vaultpay/backend/internal/models"
)

func TestSandboxExecutor_Execute(t *testing.T) {
	exec := NewSandboxExecutor()

	t.Run("is never tagged live", func(t *testing.T) {
		assert.False(t, exec.Live())
	})

	t.Run("successful execution", func(t *testing.T) {
		res, err := exec.Execute(context.Background(), Request{
			Reference: "ref-1",
			AccountID: "1234567890",
			Amount:    3850,
			Currency:  "USD",
		})

		assert.NoError(t, err)
		assert.True(t, res.Succeeded)
		assert.Equal(t, "sbx_ref-1", res.ExternalReference)
	})

	t.Run("re-execution with the same reference returns the prior outcome", func(t *testing.T) {
		first, err := exec.Execute(context.Background(), Request{Reference: "ref-2", Amount: 1000})
		assert.NoError(t, err)

		second, err := exec.Execute(context.Background(), Request{Reference: "ref-2", Amount: 1000})
		assert.NoError(t, err)
		assert.Same(t, first, second)
	})

	t.Run("simulated failure is definitive", func(t *testing.T) {
		res, err := exec.Execute(context.Background(), Request{
			Reference:   "ref-3",
			Amount:      1000,
			Destination: models.Metadata{"simulate": "fail"},
		})

		assert.NoError(t, err)
		assert.False(t, res.Succeeded)
		assert.Equal(t, "simulated decline", res.FailureReason)
	})

	t.Run("cancelled context surfaces as unknown outcome", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := exec.Execute(ctx, Request{Reference: "ref-4", Amount: 1000})
		assert.Error(t, err)
	})
}

func TestRegistry(t *testing.T) {
	sandbox := NewSandboxExecutor()
	registry := NewRegistry(sandbox)

	t.Run("returns registered executor", func(t *testing.T) {
		exec, err := registry.Get("sandbox")
		assert.NoError(t, err)
		assert.Equal(t, sandbox, exec)
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := registry.Get("carrier-pigeon")
		assert.ErrorIs(t, err, ErrUnknownExecutor)
	})

	t.Run("names", func(t *testing.T) {
		assert.Equal(t, []string{"sandbox"}, registry.Names())
	})
}
