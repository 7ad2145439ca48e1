package config

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestWatchReloadsOnWrite(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "batch:\n  cooldown: 1s\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan ResolvedConfig, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, ResolveOptions{ConfigPath: path}, 20*time.Millisecond, nil, func(cfg ResolvedConfig, err error) {
			if err == nil {
				got <- cfg
			}
		})
	}()

	// Give the watcher time to register the directory.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		if err := os.WriteFile(path, []byte("batch:\n  cooldown: 7s\n"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		select {
		case cfg := <-got:
			if d, _ := cfg.Cooldown(); d != 7*time.Second {
				t.Fatalf("cooldown = %v, want 7s", d)
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Watch returned %v", err)
			}
			return
		case <-tick.C:
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
}

func TestWatchMissingDirectory(t *testing.T) {
	err := Watch(context.Background(), ResolveOptions{ConfigPath: "/definitely/not/here/config.yaml"}, 0, nil, func(ResolvedConfig, error) {})
	if err == nil {
		t.Fatal("expected error watching a missing directory")
	}
}
