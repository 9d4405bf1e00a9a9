package sched

import (
	"context"
	"testing"
	"time"
)

func TestIsWorkday(t *testing.T) {
	tests := []struct {
		day  time.Time
		want bool
	}{
		{time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC), true},  // Monday
		{time.Date(2025, 6, 6, 10, 0, 0, 0, time.UTC), true},  // Friday
		{time.Date(2025, 6, 7, 10, 0, 0, 0, time.UTC), false}, // Saturday
		{time.Date(2025, 6, 8, 10, 0, 0, 0, time.UTC), false}, // Sunday
	}
	for _, tt := range tests {
		if got := IsWorkday(tt.day); got != tt.want {
			t.Errorf("IsWorkday(%s) = %v, want %v", tt.day.Weekday(), got, tt.want)
		}
	}
}

func TestWorkdaysOnlyPassesContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "marker")

	ran := false
	wrapped := WorkdaysOnly(nil, func(got context.Context) {
		ran = true
		if got.Value(key{}) != "marker" {
			t.Error("wrapped job did not receive the caller's context")
		}
	})

	wrapped(ctx)
	if IsWorkday(time.Now()) && !ran {
		t.Error("wrapped job did not run on a workday")
	}
	if !IsWorkday(time.Now()) && ran {
		t.Error("wrapped job ran on a weekend")
	}
}

func TestRunnerAddInvalidSpec(t *testing.T) {
	r := New(nil, context.Background())
	if _, err := r.Add("not a cron spec", func(context.Context) {}); err == nil {
		t.Error("Add() error = nil for invalid spec")
	}
}

func TestRunnerNext(t *testing.T) {
	r := New(nil, context.Background())

	if !r.Next().IsZero() {
		t.Error("Next() with no entries should be zero")
	}

	// Every second, with the seconds field.
	if _, err := r.Add("* * * * * *", func(context.Context) {}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	r.Start()
	defer r.Stop()

	next := r.Next()
	if next.IsZero() {
		t.Fatal("Next() is zero after Start()")
	}
	if d := time.Until(next); d > 2*time.Second {
		t.Errorf("Next() = %v, more than 2s away for an every-second spec", next)
	}
}

func TestRunnerRunsJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(nil, ctx)
	done := make(chan struct{})
	if _, err := r.Add("* * * * * *", func(jobCtx context.Context) {
		select {
		case done <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	r.Start()
	defer r.Stop()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run within 3s")
	}
}
