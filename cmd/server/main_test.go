package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"dapurku/backend/internal/config"
	"dapurku/backend/internal/service"
	"dapurku/backend/internal/store/memory"
)

func TestValidateSecurityConfigRejectsShortSecret(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", PaymentTolerance: 1e-6})
	if err == nil {
		t.Fatalf("expected short auth secret to be rejected")
	}
}

func TestValidateSecurityConfigRejectsZeroTolerance(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"})
	if err == nil {
		t.Fatalf("expected zero payment tolerance to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", PaymentTolerance: 1e-6})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestWireRedisFallsBackWithoutLocks(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	opts := service.Options{}
	closeFn := wireRedis(ctx, config.Config{RedisAddr: "127.0.0.1:1"}, memory.NewSeeded(), &opts, logger)
	if closeFn != nil {
		t.Fatalf("expected no closer when redis is unreachable")
	}
	if opts.Locker != nil || opts.OutlierCache != nil || opts.Audit != nil {
		t.Fatalf("expected options untouched, got %+v", opts)
	}
	if !strings.Contains(buf.String(), "no document locks") {
		t.Fatalf("expected fallback warning, got %q", buf.String())
	}
}

func TestWireRedisSkippedWhenUnset(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	opts := service.Options{}
	if closeFn := wireRedis(context.Background(), config.Config{}, memory.NewSeeded(), &opts, logger); closeFn != nil {
		t.Fatalf("expected no closer without REDIS_ADDR")
	}
}
