package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/vaultpay/backend/internal/models"
)

// PaymentMethodService manages saved card and bank descriptors. Only provider
// tokens are stored; transaction records carry a denormalized label so
// deleting a method never corrupts history.
type PaymentMethodService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewPaymentMethodService(db *sql.DB) *PaymentMethodService {
	return &PaymentMethodService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

type addPaymentMethodRequest struct {
	DisplayBrand  string `json:"displayBrand" validate:"required,min=2,max=32"`
	Last4         string `json:"last4" validate:"required,len=4,numeric"`
	ExternalToken string `json:"externalToken" validate:"required"`
	IsDefault     bool   `json:"isDefault"`
}

// ListPaymentMethods returns the account's saved methods
// @Summary List payment methods
// @Description Get the authenticated account's saved payment methods
// @Tags payment-methods
// @Produce json
// @Success 200 {array} models.PaymentMethod
// @Failure 401 {object} ErrorResponse
// @Router /payment-methods [get]
func (pms *PaymentMethodService) ListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("accountID").(string)
	if !ok || accountID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := pms.db.QueryContext(r.Context(), `
		SELECT id, account_id, brand, last4, external_token, is_default, created_at
		FROM payment_methods WHERE account_id = $1 ORDER BY created_at DESC`, accountID)
	if err != nil {
		log.Printf("[PAYMENT_METHOD] Failed to list methods for %s: %v", accountID, err)
		SendErrorResponse(w, "Failed to fetch payment methods", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	methods := []models.PaymentMethod{}
	for rows.Next() {
		var pm models.PaymentMethod
		if err := rows.Scan(&pm.ID, &pm.OwnerAccountID, &pm.DisplayBrand, &pm.Last4, &pm.ExternalToken, &pm.IsDefault, &pm.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch payment methods", http.StatusInternalServerError, nil)
			return
		}
		methods = append(methods, pm)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(methods)
}

// AddPaymentMethod saves a tokenized card or bank descriptor
// @Summary Add payment method
// @Description Save a tokenized payment method for the authenticated account
// @Tags payment-methods
// @Accept json
// @Produce json
// @Param method body addPaymentMethodRequest true "Payment method details"
// @Success 201 {object} models.PaymentMethod
// @Failure 400 {object} ErrorResponse
// @Router /payment-methods [post]
func (pms *PaymentMethodService) AddPaymentMethod(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("accountID").(string)
	if !ok || accountID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req addPaymentMethodRequest

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := pms.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	pm := models.PaymentMethod{
		ID:             uuid.New().String(),
		OwnerAccountID: accountID,
		DisplayBrand:   req.DisplayBrand,
		Last4:          req.Last4,
		ExternalToken:  req.ExternalToken,
		IsDefault:      req.IsDefault,
	}

	tx, err := pms.db.Begin()
	if err != nil {
		SendErrorResponse(w, "Failed to save payment method", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	if req.IsDefault {
		if _, err := tx.Exec(`UPDATE payment_methods SET is_default = FALSE WHERE account_id = $1`, accountID); err != nil {
			SendErrorResponse(w, "Failed to save payment method", http.StatusInternalServerError, nil)
			return
		}
	}

	err = tx.QueryRow(`
		INSERT INTO payment_methods (id, account_id, brand, last4, external_token, is_default, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING created_at`,
		pm.ID, pm.OwnerAccountID, pm.DisplayBrand, pm.Last4, pm.ExternalToken, pm.IsDefault).Scan(&pm.CreatedAt)
	if err != nil {
		log.Printf("[PAYMENT_METHOD] Failed to save method for %s: %v", accountID, err)
		SendErrorResponse(w, "Failed to save payment method", http.StatusInternalServerError, nil)
		return
	}

	if err := tx.Commit(); err != nil {
		SendErrorResponse(w, "Failed to save payment method", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[PAYMENT_METHOD] Saved method %s (%s) for account %s", pm.ID, pm.Label(), accountID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(pm)
}

// DeletePaymentMethod removes a saved method
// @Summary Delete payment method
// @Description Remove a saved payment method; past transactions keep their label
// @Tags payment-methods
// @Produce json
// @Param id path string true "Payment method ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Router /payment-methods/{id} [delete]
func (pms *PaymentMethodService) DeletePaymentMethod(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("accountID").(string)
	if !ok || accountID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	methodID := chi.URLParam(r, "id")

	result, err := pms.db.ExecContext(r.Context(),
		`DELETE FROM payment_methods WHERE id = $1 AND account_id = $2`, methodID, accountID)
	if err != nil {
		log.Printf("[PAYMENT_METHOD] Failed to delete method %s: %v", methodID, err)
		SendErrorResponse(w, "Failed to delete payment method", http.StatusInternalServerError, nil)
		return
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		SendErrorResponse(w, "Payment method not found", http.StatusNotFound, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Payment method deleted"})
}
