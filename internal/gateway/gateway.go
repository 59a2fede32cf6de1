// Package gateway issues named backend commands with JSON payloads and
// decodes typed results or structured errors.
package gateway

import (
	"context"
	"encoding/json"
	"strings"

	"tiendapos/internal/apperr"
)

const (
	CmdProcessSale            = "process_sale"
	CmdProcessReturn          = "process_return"
	CmdGetSaleWithReturnInfo  = "get_sale_with_return_info"
	CmdGetActiveShift         = "get_active_shift"
	CmdOpenShift              = "open_shift"
	CmdCloseShift             = "close_shift"
	CmdRegisterCashMovement   = "register_cash_movement"
	CmdGetShiftDetails        = "get_shift_details"
	CmdGetProductByID         = "get_product_by_id"
	CmdGetAllActivePromotions = "get_all_active_promotions"
	CmdGetAllActiveKits       = "get_all_active_kits"

	// Catalog maintenance, admin role only.
	CmdUpsertProduct   = "upsert_product"
	CmdUpsertKit       = "upsert_kit"
	CmdUpsertPromotion = "upsert_promotion"
	CmdUpsertCustomer  = "upsert_customer"
)

// Invoker runs one command. out may be nil when the result is not needed.
// Failures are *apperr.Error values of kind backend, unknown or transport.
type Invoker interface {
	Invoke(ctx context.Context, command string, payload any, out any) error
}

// ErrorBody is the failure envelope written by the command endpoint.
type ErrorBody struct {
	Error ErrorPayload `json:"error"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParseFailure turns a failed command response into an error. Structured
// payloads become backend errors; anything else keeps the raw text.
func ParseFailure(raw []byte, fallback string) *apperr.Error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return apperr.Unknown(fallback)
	}

	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.Error) == 0 {
		return apperr.Unknown(trimmed)
	}

	var structured ErrorPayload
	if err := json.Unmarshal(envelope.Error, &structured); err == nil && structured.Message != "" {
		code := structured.Code
		if code == "" {
			code = apperr.CodeInternal
		}
		return apperr.Backend(code, structured.Message)
	}

	var message string
	if err := json.Unmarshal(envelope.Error, &message); err == nil && message != "" {
		return apperr.Unknown(message)
	}
	return apperr.Unknown(trimmed)
}
