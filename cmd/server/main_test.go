package main

import (
	"testing"

	"github.com/damndalandan/hardware-store-pos-sub001/internal/config"
)

func TestValidateSecurityConfigRejectsShortSecret(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", ManagerPIN: "739154"})
	if err == nil {
		t.Fatal("expected short AUTH_SECRET to be rejected")
	}
}

func TestValidateSecurityConfigRejectsWeakPIN(t *testing.T) {
	secret := "0123456789abcdef0123456789abcdef"
	for _, pin := range []string{"123456", "111111", "987654", "12345"} {
		if err := validateSecurityConfig(config.Config{AuthSecret: secret, ManagerPIN: pin}); err == nil {
			t.Fatalf("expected PIN %q to be rejected", pin)
		}
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "739154"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidateSecurityConfigAllowsBlankPIN(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"})
	if err != nil {
		t.Fatalf("expected blank PIN to be allowed (disables cashier voids), got %v", err)
	}
}
