package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tiendapos/internal/apperr"
	"tiendapos/internal/cache"
	"tiendapos/internal/domain"
	"tiendapos/internal/gateway"
	"tiendapos/internal/service"
	"tiendapos/internal/shift"
	"tiendapos/internal/store/memory"
)

func newTracker(t *testing.T) *shift.Tracker {
	t.Helper()
	svc := service.New(memory.NewSeeded(), nil, "test-store", decimal.NewFromInt(5000))
	local := gateway.NewLocal(svc, gateway.WithContext(func(ctx context.Context) context.Context {
		return service.WithActor(ctx, domain.Actor{Username: "cashier", Role: "cashier"})
	}))
	return shift.NewTracker(gateway.NewClient(local), cache.NewMemory(), "register-1", time.Minute, nil)
}

func TestRunWithoutCommandPrintsUsage(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), nil, newTracker(t), "cashier", &out)
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("expected flag.ErrHelp, got %v", err)
	}
	if !strings.Contains(out.String(), "usage: register") {
		t.Fatalf("expected usage text, got %q", out.String())
	}
}

func TestRunShiftLifecycle(t *testing.T) {
	ctx := context.Background()
	tracker := newTracker(t)
	var out bytes.Buffer

	if err := run(ctx, []string{"status"}, tracker, "cashier", &out); err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out.String(), "no shift is open") {
		t.Fatalf("unexpected status output %q", out.String())
	}

	out.Reset()
	if err := run(ctx, []string{"open", "-cash", "300"}, tracker, "cashier", &out); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if !strings.Contains(out.String(), `"status": "open"`) {
		t.Fatalf("expected open shift in output, got %q", out.String())
	}

	out.Reset()
	if err := run(ctx, []string{"movement", "-type", "out", "-amount", "50", "-concept", "proveedor", "-description", "garrafones"}, tracker, "cashier", &out); err != nil {
		t.Fatalf("movement failed: %v", err)
	}

	out.Reset()
	err := run(ctx, []string{"close", "-cash", "240", "-card", "0", "-confirm"}, tracker, "cashier", &out)
	if !apperr.IsValidation(err) {
		t.Fatalf("expected notes to be required for a -10 difference, got %v", err)
	}
	if !strings.Contains(out.String(), `"notes_required": true`) {
		t.Fatalf("expected reconciliation in output, got %q", out.String())
	}

	out.Reset()
	if err := run(ctx, []string{"close", "-cash", "250", "-card", "0", "-confirm"}, tracker, "cashier", &out); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if tracker.Current() != nil {
		t.Fatalf("expected no current shift after close")
	}
}

func TestRunRejectsBadAmounts(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"open", "-cash", "mucho"}, newTracker(t), "cashier", &out)
	if !apperr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"void"}, newTracker(t), "cashier", &out)
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestDescribeIncludesBackendCode(t *testing.T) {
	msg := describe(apperr.Backend(apperr.CodeInsufficientStock, "not enough stock"))
	if !strings.Contains(msg, "insufficient_stock") {
		t.Fatalf("expected backend code in %q", msg)
	}
}
