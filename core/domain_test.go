package core

import (
	"errors"
	"testing"
	"time"
)

func TestParseRequestMode(t *testing.T) {
	cases := []struct {
		raw     string
		want    RequestMode
		wantErr bool
	}{
		{raw: "sync", want: RequestModeSync},
		{raw: " ASYNC ", want: RequestModeAsync},
		{raw: "Sync", want: RequestModeSync},
		{raw: "", wantErr: true},
		{raw: "batch", wantErr: true},
	}
	for _, tc := range cases {
		mode, err := ParseRequestMode(tc.raw)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidRequestMode) {
				t.Fatalf("ParseRequestMode(%q): expected invalid mode error, got %v", tc.raw, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseRequestMode(%q): unexpected error %v", tc.raw, err)
		}
		if mode != tc.want {
			t.Fatalf("ParseRequestMode(%q): expected %q, got %q", tc.raw, tc.want, mode)
		}
	}
}

func TestRequestRecord_TransitionGraph(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		mode    RequestMode
		current RequestStatus
		next    RequestStatus
		allowed bool
	}{
		{name: "pending to processing", mode: RequestModeSync, current: RequestStatusPending, next: RequestStatusProcessing, allowed: true},
		{name: "processing to completed", mode: RequestModeSync, current: RequestStatusProcessing, next: RequestStatusCompleted, allowed: true},
		{name: "processing to failed", mode: RequestModeSync, current: RequestStatusProcessing, next: RequestStatusFailed, allowed: true},
		{name: "pending skips processing", mode: RequestModeSync, current: RequestStatusPending, next: RequestStatusCompleted, allowed: false},
		{name: "completed is terminal for sync", mode: RequestModeSync, current: RequestStatusCompleted, next: RequestStatusCallbackSent, allowed: false},
		{name: "async completed to callback sent", mode: RequestModeAsync, current: RequestStatusCompleted, next: RequestStatusCallbackSent, allowed: true},
		{name: "async completed to callback failed", mode: RequestModeAsync, current: RequestStatusCompleted, next: RequestStatusCallbackFailed, allowed: true},
		{name: "failed never reaches callback", mode: RequestModeAsync, current: RequestStatusFailed, next: RequestStatusCallbackSent, allowed: false},
		{name: "callback sent is terminal", mode: RequestModeAsync, current: RequestStatusCallbackSent, next: RequestStatusCompleted, allowed: false},
		{name: "no backwards transition", mode: RequestModeSync, current: RequestStatusProcessing, next: RequestStatusPending, allowed: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			record := RequestRecord{Mode: tc.mode, Status: tc.current}
			err := record.TransitionTo(tc.next, now)
			if tc.allowed {
				if err != nil {
					t.Fatalf("expected transition %s -> %s allowed, got %v", tc.current, tc.next, err)
				}
				if record.Status != tc.next {
					t.Fatalf("expected status %q, got %q", tc.next, record.Status)
				}
				return
			}
			if !errors.Is(err, ErrInvalidRequestStatusTransition) {
				t.Fatalf("expected transition %s -> %s rejected, got %v", tc.current, tc.next, err)
			}
			if record.Status != tc.current {
				t.Fatalf("expected status unchanged on rejection, got %q", record.Status)
			}
		})
	}
}

func TestRequestRecord_CompletedAtStampedOnce(t *testing.T) {
	first := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	later := first.Add(5 * time.Second)

	record := RequestRecord{Mode: RequestModeAsync, Status: RequestStatusProcessing}
	if err := record.TransitionTo(RequestStatusCompleted, first); err != nil {
		t.Fatalf("transition to completed: %v", err)
	}
	if record.CompletedAt == nil || !record.CompletedAt.Equal(first) {
		t.Fatalf("expected completed_at %v, got %v", first, record.CompletedAt)
	}

	if err := record.TransitionTo(RequestStatusCallbackSent, later); err != nil {
		t.Fatalf("transition to callback_sent: %v", err)
	}
	if !record.CompletedAt.Equal(first) {
		t.Fatalf("expected completed_at preserved at %v, got %v", first, record.CompletedAt)
	}
}

func TestRequestRecord_FailureStampsCompletedAt(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)

	record := RequestRecord{Mode: RequestModeSync, Status: RequestStatusProcessing}
	if err := record.TransitionTo(RequestStatusFailed, now); err != nil {
		t.Fatalf("transition to failed: %v", err)
	}
	if record.CompletedAt == nil || !record.CompletedAt.Equal(now) {
		t.Fatalf("expected completed_at stamped on failure, got %v", record.CompletedAt)
	}
}
