package cache

import (
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestKeyBuilders(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"decision", LatestDecisionKey("ETH-USDT-SWAP"), "bot:ETH-USDT-SWAP:decision:latest"},
		{"position", PositionKey("ETH-USDT-SWAP"), "bot:ETH-USDT-SWAP:position"},
		{"summary", SummaryKey("BTC-USDT-SWAP"), "bot:BTC-USDT-SWAP:summary"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestIsMiss(t *testing.T) {
	if !IsMiss(redis.Nil) {
		t.Error("redis.Nil should be a cache miss")
	}
	if IsMiss(ErrUnavailable) {
		t.Error("ErrUnavailable is not a cache miss")
	}
}

func TestDisabledConfig(t *testing.T) {
	if _, err := New(Config{Enabled: false}); err == nil {
		t.Error("expected error for disabled config")
	}
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	s := &Service{maxFailures: 3, healthy: true}

	s.recordFailure()
	s.recordFailure()
	if !s.IsHealthy() {
		t.Fatal("breaker opened before reaching max failures")
	}

	s.recordFailure()
	if s.IsHealthy() {
		t.Fatal("breaker should be open after max failures")
	}

	s.recordSuccess()
	if !s.IsHealthy() {
		t.Fatal("breaker should close on success")
	}
}
