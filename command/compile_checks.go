package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[ProcessSyncMessage] = (*ProcessSyncCommand)(nil)
	_ gocmd.Commander[SubmitAsyncMessage] = (*SubmitAsyncCommand)(nil)
)
