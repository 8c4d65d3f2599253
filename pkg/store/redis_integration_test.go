//go:build integration

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/newtron-network/ctrlcfg/internal/testutil"
)

func TestRedisStore(t *testing.T) {
	testutil.SkipIfNoRedis(t)
	testutil.FlushDB(t, 0)
	ctx := testutil.Context(t)

	s, err := NewRedisStore(ctx, RedisConfig{Addr: testutil.RedisAddr(), History: 2})
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	defer s.Close()

	for _, cfg := range []string{`{"a": 1}`, `{"a": 2}`, `{"a": 3}`} {
		if err := s.Put(ctx, &Record{Device: "apic1", Platform: "cisco_apic", Config: cfg, Skipped: []string{"ntp"}}); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}
	s.Put(ctx, &Record{Device: "mx1", Config: "{}"})

	latest, err := s.Latest(ctx, "apic1")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.Config != `{"a": 3}` || latest.Platform != "cisco_apic" || len(latest.Skipped) != 1 {
		t.Errorf("Latest() = %+v", latest)
	}

	hist, _ := s.History(ctx, "apic1", 0)
	if len(hist) != 2 || hist[0].Config != `{"a": 3}` {
		t.Errorf("History() = %d records, first %+v", len(hist), hist[0])
	}

	devices, _ := s.Devices(ctx)
	if len(devices) != 2 || devices[0] != "apic1" {
		t.Errorf("Devices() = %v", devices)
	}
	if n := testutil.KeyCount(t, 0, "ctrlcfg|*"); n != 4 {
		t.Errorf("key count = %d, want 4", n)
	}

	if _, err := s.Latest(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Latest(missing) error = %v", err)
	}
}
