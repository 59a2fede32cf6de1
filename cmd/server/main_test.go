package main

import (
	"testing"

	"github.com/shopspring/decimal"

	"tiendapos/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", StoreID: "main-store"})
	if err == nil {
		t.Fatalf("expected short auth secret to be rejected")
	}
}

func TestValidateSecurityConfigRejectsNegativeCashCeiling(t *testing.T) {
	err := validateSecurityConfig(config.Config{
		AuthSecret:     "0123456789abcdef0123456789abcdef",
		StoreID:        "main-store",
		MaxInitialCash: decimal.NewFromInt(-1),
	})
	if err == nil {
		t.Fatalf("expected negative MAX_INITIAL_CASH to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{
		AuthSecret:     "0123456789abcdef0123456789abcdef",
		StoreID:        "main-store",
		MaxInitialCash: decimal.NewFromInt(5000),
	})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}
