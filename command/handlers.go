// Package command exposes the mutating relay operations as go-command
// handlers so hosts can route them through their own dispatch pipeline.
package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-relay/core"
)

type MutatingService interface {
	ProcessSync(ctx context.Context, req core.ProcessRequest) (core.SyncResult, error)
	SubmitAsync(ctx context.Context, req core.SubmitRequest) (core.AsyncAck, error)
}

type ProcessSyncCommand struct {
	service MutatingService
}

func NewProcessSyncCommand(service MutatingService) *ProcessSyncCommand {
	return &ProcessSyncCommand{service: service}
}

func (c *ProcessSyncCommand) Execute(ctx context.Context, msg ProcessSyncMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: sync processing service is required")
	}
	out, err := c.service.ProcessSync(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SubmitAsyncCommand struct {
	service MutatingService
}

func NewSubmitAsyncCommand(service MutatingService) *SubmitAsyncCommand {
	return &SubmitAsyncCommand{service: service}
}

func (c *SubmitAsyncCommand) Execute(ctx context.Context, msg SubmitAsyncMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: async submission service is required")
	}
	out, err := c.service.SubmitAsync(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
