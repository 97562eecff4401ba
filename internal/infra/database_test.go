package infra

import (
	"testing"
	"time"
)

func TestPoolConfigAppliesOptions(t *testing.T) {
	cfg, err := poolConfig("postgres://settlement@localhost:5432/settlement", PoolOptions{
		AppName:         "settlement",
		MaxConns:        20,
		MinConns:        2,
		MaxConnLifetime: 15 * time.Minute,
		ConnectTimeout:  3 * time.Second,
	})
	if err != nil {
		t.Fatalf("pool config: %v", err)
	}
	if cfg.MaxConns != 20 || cfg.MinConns != 2 || cfg.MaxConnLifetime != 15*time.Minute {
		t.Fatalf("unexpected pool limits %d/%d/%s", cfg.MinConns, cfg.MaxConns, cfg.MaxConnLifetime)
	}
	if cfg.ConnConfig.ConnectTimeout != 3*time.Second {
		t.Fatalf("unexpected connect timeout %s", cfg.ConnConfig.ConnectTimeout)
	}
	if got := cfg.ConnConfig.RuntimeParams["application_name"]; got != "settlement" {
		t.Fatalf("unexpected application_name %q", got)
	}
}

func TestPoolConfigKeepsDefaults(t *testing.T) {
	cfg, err := poolConfig("postgres://localhost/settlement?pool_max_conns=7", PoolOptions{})
	if err != nil {
		t.Fatalf("pool config: %v", err)
	}
	if cfg.MaxConns != 7 {
		t.Fatalf("expected the url's pool_max_conns to win, got %d", cfg.MaxConns)
	}
}

func TestPoolConfigRejectsBadInput(t *testing.T) {
	if _, err := poolConfig("", PoolOptions{}); err == nil {
		t.Fatalf("expected missing url to be rejected")
	}
	if _, err := poolConfig("postgres://localhost/settlement", PoolOptions{MaxConns: 2, MinConns: 4}); err == nil {
		t.Fatalf("expected min above max to be rejected")
	}
}
