package repository

import (
	"context"
	"testing"
	"time"

	"TruthGate/pkg/cache"
)

func TestExecutionEnabledAbsentKeyMeansDisabled(t *testing.T) {
	store := NewRedisStateStore(cache.NewMemoryCache())

	enabled, err := store.ExecutionEnabled(context.Background())
	if err != nil {
		t.Fatalf("execution enabled: %v", err)
	}
	if enabled {
		t.Fatal("absent kill switch key must read as disabled")
	}
}

func TestExecutionEnabledCaseInsensitive(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"True", true},
		{"TRUE", true},
		{"false", false},
		{"1", false},
		{"", false},
	}
	for _, tc := range cases {
		mc := cache.NewMemoryCache()
		if err := mc.Set(ctx, "execution:enabled", tc.value, time.Minute); err != nil {
			t.Fatalf("set %q: %v", tc.value, err)
		}

		enabled, err := NewRedisStateStore(mc).ExecutionEnabled(ctx)
		if err != nil {
			t.Fatalf("execution enabled %q: %v", tc.value, err)
		}
		if enabled != tc.want {
			t.Fatalf("value %q: got %v, want %v", tc.value, enabled, tc.want)
		}
	}
}
