package command

import (
	"context"
	"fmt"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-relay/core"
)

type stubMutatingService struct {
	processSyncFn func(ctx context.Context, req core.ProcessRequest) (core.SyncResult, error)
	submitAsyncFn func(ctx context.Context, req core.SubmitRequest) (core.AsyncAck, error)
}

func (s stubMutatingService) ProcessSync(ctx context.Context, req core.ProcessRequest) (core.SyncResult, error) {
	if s.processSyncFn == nil {
		return core.SyncResult{}, fmt.Errorf("unexpected ProcessSync call")
	}
	return s.processSyncFn(ctx, req)
}

func (s stubMutatingService) SubmitAsync(ctx context.Context, req core.SubmitRequest) (core.AsyncAck, error) {
	if s.submitAsyncFn == nil {
		return core.AsyncAck{}, fmt.Errorf("unexpected SubmitAsync call")
	}
	return s.submitAsyncFn(ctx, req)
}

func TestProcessSyncCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.SyncResult{
		RequestID:        "req-1",
		Result:           map[string]any{"computed_value": 12.5},
		ProcessingTimeMS: 42,
		Timestamp:        time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC),
	}
	called := false

	svc := stubMutatingService{
		processSyncFn: func(_ context.Context, req core.ProcessRequest) (core.SyncResult, error) {
			called = true
			if req.Complexity != 3 {
				t.Fatalf("expected complexity 3, got %d", req.Complexity)
			}
			return expected, nil
		},
	}

	cmd := NewProcessSyncCommand(svc)
	collector := gocmd.NewResult[core.SyncResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, ProcessSyncMessage{Request: core.ProcessRequest{
		Input:      map[string]any{"name": "test"},
		Complexity: 3,
	}})
	if err != nil {
		t.Fatalf("execute process sync: %v", err)
	}
	if !called {
		t.Fatalf("expected sync service invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.RequestID != expected.RequestID || result.ProcessingTimeMS != expected.ProcessingTimeMS {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestSubmitAsyncCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.AsyncAck{RequestID: "req-2", Status: "accepted", Message: "queued for processing"}
	called := false

	svc := stubMutatingService{
		submitAsyncFn: func(_ context.Context, req core.SubmitRequest) (core.AsyncAck, error) {
			called = true
			if req.CallbackURL != "https://hooks.example.com/cb" {
				t.Fatalf("expected callback url, got %q", req.CallbackURL)
			}
			return expected, nil
		},
	}

	cmd := NewSubmitAsyncCommand(svc)
	collector := gocmd.NewResult[core.AsyncAck]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, SubmitAsyncMessage{Request: core.SubmitRequest{
		Input:       map[string]any{"name": "test"},
		CallbackURL: "https://hooks.example.com/cb",
	}})
	if err != nil {
		t.Fatalf("execute submit async: %v", err)
	}
	if !called {
		t.Fatalf("expected async service invocation")
	}
	ack, ok := collector.Load()
	if !ok {
		t.Fatalf("expected ack to be stored")
	}
	if ack.RequestID != expected.RequestID || ack.Status != "accepted" {
		t.Fatalf("unexpected ack: %#v", ack)
	}
}

func TestCommands_RequireConfiguredService(t *testing.T) {
	if err := (&ProcessSyncCommand{}).Execute(context.Background(), ProcessSyncMessage{}); err == nil {
		t.Fatalf("expected dependency error from unconfigured sync command")
	}
	if err := (&SubmitAsyncCommand{}).Execute(context.Background(), SubmitAsyncMessage{}); err == nil {
		t.Fatalf("expected dependency error from unconfigured async command")
	}
}

func TestMessages_Validate(t *testing.T) {
	cases := []struct {
		name    string
		message interface{ Validate() error }
		wantErr bool
	}{
		{"sync valid", ProcessSyncMessage{Request: core.ProcessRequest{Input: map[string]any{"x": 1}, Complexity: 5}}, false},
		{"sync zero complexity defaults later", ProcessSyncMessage{Request: core.ProcessRequest{Input: map[string]any{"x": 1}}}, false},
		{"sync missing input", ProcessSyncMessage{}, true},
		{"sync complexity too high", ProcessSyncMessage{Request: core.ProcessRequest{Input: map[string]any{"x": 1}, Complexity: 11}}, true},
		{"async valid", SubmitAsyncMessage{Request: core.SubmitRequest{Input: map[string]any{"x": 1}, CallbackURL: "https://example.com/cb"}}, false},
		{"async missing callback", SubmitAsyncMessage{Request: core.SubmitRequest{Input: map[string]any{"x": 1}}}, true},
		{"async missing input", SubmitAsyncMessage{Request: core.SubmitRequest{CallbackURL: "https://example.com/cb"}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.message.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("expected valid message, got %v", err)
			}
		})
	}
}
