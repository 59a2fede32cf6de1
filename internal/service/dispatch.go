package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"tiendapos/internal/apperr"
	"tiendapos/internal/gateway"
	"tiendapos/internal/store"
)

type commandHandler func(s *Service, ctx context.Context, payload json.RawMessage) (any, error)

var commands = map[string]commandHandler{
	gateway.CmdProcessSale: func(s *Service, ctx context.Context, payload json.RawMessage) (any, error) {
		return withPayload(ctx, payload, s.ProcessSale)
	},
	gateway.CmdProcessReturn: func(s *Service, ctx context.Context, payload json.RawMessage) (any, error) {
		return withPayload(ctx, payload, s.ProcessReturn)
	},
	gateway.CmdGetSaleWithReturnInfo: func(s *Service, ctx context.Context, payload json.RawMessage) (any, error) {
		return withPayload(ctx, payload, s.GetSaleWithReturnInfo)
	},
	gateway.CmdGetActiveShift: func(s *Service, ctx context.Context, payload json.RawMessage) (any, error) {
		return withPayload(ctx, payload, s.GetActiveShift)
	},
	gateway.CmdOpenShift: func(s *Service, ctx context.Context, payload json.RawMessage) (any, error) {
		return withPayload(ctx, payload, s.OpenShift)
	},
	gateway.CmdCloseShift: func(s *Service, ctx context.Context, payload json.RawMessage) (any, error) {
		return withPayload(ctx, payload, s.CloseShift)
	},
	gateway.CmdRegisterCashMovement: func(s *Service, ctx context.Context, payload json.RawMessage) (any, error) {
		return withPayload(ctx, payload, s.RegisterCashMovement)
	},
	gateway.CmdGetShiftDetails: func(s *Service, ctx context.Context, payload json.RawMessage) (any, error) {
		return withPayload(ctx, payload, s.GetShiftDetails)
	},
	gateway.CmdGetProductByID: func(s *Service, ctx context.Context, payload json.RawMessage) (any, error) {
		return withPayload(ctx, payload, s.GetProductByID)
	},
	gateway.CmdGetAllActivePromotions: func(s *Service, ctx context.Context, _ json.RawMessage) (any, error) {
		return s.GetAllActivePromotions(ctx)
	},
	gateway.CmdGetAllActiveKits: func(s *Service, ctx context.Context, _ json.RawMessage) (any, error) {
		return s.GetAllActiveKits(ctx)
	},
	gateway.CmdUpsertProduct: func(s *Service, ctx context.Context, payload json.RawMessage) (any, error) {
		return withPayload(ctx, payload, s.UpsertProduct)
	},
	gateway.CmdUpsertKit: func(s *Service, ctx context.Context, payload json.RawMessage) (any, error) {
		return withPayload(ctx, payload, s.UpsertKit)
	},
	gateway.CmdUpsertPromotion: func(s *Service, ctx context.Context, payload json.RawMessage) (any, error) {
		return withPayload(ctx, payload, s.UpsertPromotion)
	},
	gateway.CmdUpsertCustomer: func(s *Service, ctx context.Context, payload json.RawMessage) (any, error) {
		return withPayload(ctx, payload, s.UpsertCustomer)
	},
}

// Commands lists the command names Dispatch understands.
func Commands() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Dispatch runs a named command. Every failure comes back as an
// *apperr.Error of kind backend so transports can forward code and message.
func (s *Service) Dispatch(ctx context.Context, command string, payload json.RawMessage) (any, error) {
	handler, ok := commands[command]
	if !ok {
		return nil, apperr.Backend(apperr.CodeUnknownCommand, fmt.Sprintf("unknown command %q", command))
	}
	result, err := handler(s, ctx, payload)
	if err != nil {
		return nil, s.commandError(command, err)
	}
	return result, nil
}

func withPayload[Req any, Resp any](ctx context.Context, payload json.RawMessage, fn func(context.Context, Req) (Resp, error)) (any, error) {
	req, err := decodePayload[Req](payload)
	if err != nil {
		return nil, err
	}
	return fn(ctx, req)
}

func decodePayload[T any](payload json.RawMessage) (T, error) {
	var req T
	if len(bytes.TrimSpace(payload)) == 0 {
		return req, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return req, apperr.Backend(apperr.CodeInvalidRequest, "invalid payload: "+err.Error())
	}
	return req, nil
}

// commandError maps store sentinels to wire codes. Unexpected failures are
// logged and reported with a generic message.
func (s *Service) commandError(command string, err error) *apperr.Error {
	if appErr, ok := apperr.As(err); ok {
		return appErr
	}

	code := ""
	switch {
	case errors.Is(err, store.ErrNotFound):
		code = apperr.CodeNotFound
	case errors.Is(err, store.ErrInsufficientStock):
		code = apperr.CodeInsufficientStock
	case errors.Is(err, store.ErrShiftAlreadyOpen):
		code = apperr.CodeConflict
	case errors.Is(err, store.ErrCreditLimitExceeded):
		code = apperr.CodeCreditLimitExceeded
	case errors.Is(err, store.ErrInvalidTransaction):
		code = apperr.CodeInvalidRequest
	}
	if code != "" {
		return apperr.Backend(code, strings.TrimSpace(err.Error()))
	}

	s.logger.Error("command failed", zap.String("command", command), zap.Error(err))
	return apperr.Backend(apperr.CodeInternal, "internal server error")
}

var _ gateway.Dispatcher = (*Service)(nil)

