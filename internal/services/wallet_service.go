package services

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/vaultpay/backend/internal/executors"
	"github.com/vaultpay/backend/internal/models"
)

// WalletService exposes the ledger over HTTP. Handlers only parse, validate
// and map errors to status codes; every balance rule lives in LedgerService.
type WalletService struct {
	ledger          *LedgerService
	txLog           *TransactionLog
	registry        *executors.Registry
	validator       *ValidationHelper
	withdrawalFees  FeeSchedule
	defaultExecutor string
}

func NewWalletService(ledger *LedgerService, txLog *TransactionLog, registry *executors.Registry, defaultExecutor string) *WalletService {
	return &WalletService{
		ledger:          ledger,
		txLog:           txLog,
		registry:        registry,
		validator:       NewValidationHelper(),
		withdrawalFees:  WithdrawalFeesFromConfig(),
		defaultExecutor: defaultExecutor,
	}
}

type depositRequest struct {
	Amount      int64           `json:"amount" validate:"required,gt=0"`
	Executor    string          `json:"executor,omitempty"`
	Destination models.Metadata `json:"destination,omitempty"`
	MethodLabel string          `json:"methodLabel,omitempty"`
}

type withdrawRequest struct {
	Amount      int64           `json:"amount" validate:"required,gt=0"`
	Executor    string          `json:"executor,omitempty"`
	Destination models.Metadata `json:"destination,omitempty"`
	MethodLabel string          `json:"methodLabel,omitempty"`
}

// Deposit credits the authenticated account
// @Summary Deposit funds
// @Description Credit the authenticated account, optionally collecting from an external rail first
// @Tags wallet
// @Accept json
// @Produce json
// @Param deposit body depositRequest true "Deposit details"
// @Success 201 {object} object{transaction=models.TransactionRecord,balance=models.AccountBalance}
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /wallet/deposit [post]
func (ws *WalletService) Deposit(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("accountID").(string)
	if !ok || accountID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req depositRequest
	if !ws.decodeBody(w, r, &req) {
		return
	}

	if err := ws.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var exec executors.TransferExecutor
	if req.Executor != "" {
		var err error
		exec, err = ws.registry.Get(req.Executor)
		if err != nil {
			SendErrorResponse(w, "Unknown executor", http.StatusBadRequest, nil)
			return
		}
	}

	rec, err := ws.ledger.Deposit(r.Context(), accountID, req.Amount, ZeroFees, exec, req.Destination, req.MethodLabel)
	if err != nil {
		ws.sendLedgerError(w, err)
		return
	}

	log.Printf("[WALLET] Deposit %s completed for account %s: net %d", rec.ID, accountID, rec.NetAmount)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":     true,
		"transaction": rec,
		"balance":     ws.balanceAfter(r, accountID, rec.ID),
	})
}

// Withdraw debits the authenticated account through an external rail
// @Summary Withdraw funds
// @Description Reserve the gross amount, execute the payout, and settle or release
// @Tags wallet
// @Accept json
// @Produce json
// @Param withdrawal body withdrawRequest true "Withdrawal details"
// @Success 201 {object} object{transaction=models.TransactionRecord,balance=models.AccountBalance}
// @Success 202 {object} object{transaction=models.TransactionRecord,balance=models.AccountBalance} "Outcome unknown, reconciliation scheduled"
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /wallet/withdraw [post]
func (ws *WalletService) Withdraw(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("accountID").(string)
	if !ok || accountID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req withdrawRequest
	if !ws.decodeBody(w, r, &req) {
		return
	}

	if err := ws.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	name := req.Executor
	if name == "" {
		name = ws.defaultExecutor
	}
	exec, err := ws.registry.Get(name)
	if err != nil {
		SendErrorResponse(w, "Unknown executor", http.StatusBadRequest, nil)
		return
	}

	rec, err := ws.ledger.Withdraw(r.Context(), accountID, req.Amount, ws.withdrawalFees, exec, req.Destination, req.MethodLabel)
	if err != nil {
		var execErr *ExecutionError
		if errors.As(err, &execErr) && execErr.Pending {
			// Reservation held; the reconciler settles once the rail answers.
			log.Printf("[WALLET] Withdrawal %s awaiting reconciliation for account %s", rec.ID, accountID)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success":     false,
				"transaction": rec,
				"balance":     ws.balanceAfter(r, accountID, rec.ID),
				"message":     "Transfer outcome pending reconciliation",
			})
			return
		}
		ws.sendLedgerError(w, err)
		return
	}

	log.Printf("[WALLET] Withdrawal %s completed for account %s: gross %d, fee %d", rec.ID, accountID, rec.GrossAmount, rec.Fee)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":     true,
		"transaction": rec,
		"balance":     ws.balanceAfter(r, accountID, rec.ID),
	})
}

// GetBalance returns the committed balance snapshot
// @Summary Get account balance
// @Description Retrieve available, pending, and lifetime totals for the authenticated account
// @Tags wallet
// @Produce json
// @Success 200 {object} models.AccountBalance
// @Failure 503 {object} ErrorResponse
// @Router /wallet/balance [get]
func (ws *WalletService) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("accountID").(string)
	if !ok || accountID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	balance, err := ws.ledger.GetBalance(r.Context(), accountID)
	if err != nil {
		ws.sendLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(balance)
}

// ListTransactions returns the account's audit log, newest first
// @Summary List transactions
// @Description Get the authenticated account's transaction records, newest first
// @Tags wallet
// @Produce json
// @Param limit query int false "Number of records to return (default: full history)"
// @Success 200 {object} object{transactions=[]models.TransactionRecord,count=int}
// @Failure 503 {object} ErrorResponse
// @Router /wallet/transactions [get]
func (ws *WalletService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("accountID").(string)
	if !ok || accountID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	// No limit means the full history: every operation ever performed on the
	// account stays observable through this endpoint.
	var req struct {
		Limit int `validate:"omitempty,min=1"`
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			req.Limit = l
		}
	}

	if err := ws.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	records, err := ws.txLog.ListByAccount(r.Context(), accountID, req.Limit)
	if err != nil {
		ws.sendLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"transactions": records,
		"count":        len(records),
	})
}

// balanceAfter reads the committed snapshot for the response envelope. The
// mutation has already committed, so a failed read only degrades the
// response to a null balance; it never fails the operation.
func (ws *WalletService) balanceAfter(r *http.Request, accountID, txID string) *models.AccountBalance {
	balance, err := ws.ledger.GetBalance(r.Context(), accountID)
	if err != nil {
		log.Printf("[WALLET] Balance read after transaction %s failed: %v", txID, err)
		return nil
	}
	return balance
}

func (ws *WalletService) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	return true
}

func (ws *WalletService) sendLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, ErrInsufficientFunds):
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, ErrDuplicateID):
		SendErrorResponse(w, "Duplicate transaction", http.StatusConflict, nil)
	case errors.Is(err, ErrExecutionFailed):
		SendErrorResponse(w, err.Error(), http.StatusBadGateway, nil)
	case errors.Is(err, ErrStoreUnavailable):
		SendErrorResponse(w, "Service temporarily unavailable", http.StatusServiceUnavailable, nil)
	default:
		log.Printf("[WALLET] Unexpected error: %v", err)
		SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
	}
}
