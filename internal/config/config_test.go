package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadPolicyDefaults(t *testing.T) {
	t.Setenv("PAYMENT_TOLERANCE", "")
	t.Setenv("PRICE_ALERT_THRESHOLD_PCT", "not-a-number")
	t.Setenv("PRICE_BASELINE_WINDOW", "0")
	t.Setenv("AUDIT_STREAM", "")

	cfg := Load()
	if cfg.PaymentTolerance != 1e-6 {
		t.Fatalf("expected default payment tolerance, got %v", cfg.PaymentTolerance)
	}
	if cfg.PriceAlertThresholdPct != 15 {
		t.Fatalf("expected default threshold 15, got %v", cfg.PriceAlertThresholdPct)
	}
	if cfg.PriceBaselineWindow != 10 {
		t.Fatalf("expected default window 10, got %d", cfg.PriceBaselineWindow)
	}
	if cfg.AuditStream != "p2p:audit" {
		t.Fatalf("expected default audit stream, got %q", cfg.AuditStream)
	}
}

func TestLoadPolicyOverrides(t *testing.T) {
	t.Setenv("PRICE_ALERT_THRESHOLD_PCT", "20")
	t.Setenv("PRICE_BASELINE_WINDOW", "5")
	t.Setenv("DOCUMENT_LOCK_TTL_SECONDS", "3")

	cfg := Load()
	if cfg.PriceAlertThresholdPct != 20 || cfg.PriceBaselineWindow != 5 || cfg.DocumentLockTTLSeconds != 3 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLogErrorWritesModuleFields(t *testing.T) {
	logger := NewLogger("debug")
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	LogError(logger, "service", "CreatePayment", "reconcile failed", map[string]any{"invoice_id": 7}, errors.New("boom"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry: %v", err)
	}
	if entry["module"] != "service" || entry["funcName"] != "CreatePayment" || entry["msg"] != "boom" {
		t.Fatalf("unexpected log entry: %v", entry)
	}
	if entry["level"] != logrus.ErrorLevel.String() {
		t.Fatalf("expected error level, got %v", entry["level"])
	}
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger := NewLogger("loud")
	if logger.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level, got %s", logger.GetLevel())
	}
}
