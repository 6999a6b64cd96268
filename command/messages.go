package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-relay/core"
)

const (
	TypeProcessSync = "relay.command.process_sync"
	TypeSubmitAsync = "relay.command.submit_async"
)

type ProcessSyncMessage struct {
	Request core.ProcessRequest
}

func (ProcessSyncMessage) Type() string { return TypeProcessSync }

func (m ProcessSyncMessage) Validate() error {
	if len(m.Request.Input) == 0 {
		return fmt.Errorf("command: input data is required")
	}
	if m.Request.Complexity != 0 && (m.Request.Complexity < 1 || m.Request.Complexity > 10) {
		return fmt.Errorf("command: complexity must be between 1 and 10")
	}
	return nil
}

type SubmitAsyncMessage struct {
	Request core.SubmitRequest
}

func (SubmitAsyncMessage) Type() string { return TypeSubmitAsync }

func (m SubmitAsyncMessage) Validate() error {
	if len(m.Request.Input) == 0 {
		return fmt.Errorf("command: input data is required")
	}
	if strings.TrimSpace(m.Request.CallbackURL) == "" {
		return fmt.Errorf("command: callback url is required")
	}
	if m.Request.Complexity != 0 && (m.Request.Complexity < 1 || m.Request.Complexity > 10) {
		return fmt.Errorf("command: complexity must be between 1 and 10")
	}
	return nil
}
