package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type requestRecord struct {
	bun.BaseModel `bun:"table:relay_requests,alias:rr"`

	ID               string         `bun:"id,pk"`
	Mode             string         `bun:"mode,notnull"`
	Status           string         `bun:"status,notnull"`
	Input            map[string]any `bun:"input,type:jsonb,notnull"`
	Result           map[string]any `bun:"result,type:jsonb"`
	ProcessingTimeMS float64        `bun:"processing_time_ms,notnull,default:0"`
	CallbackURL      string         `bun:"callback_url"`
	CallbackAttempts int            `bun:"callback_attempts,notnull,default:0"`
	ErrorMessage     string         `bun:"error_message"`
	CreatedAt        time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	CompletedAt      *time.Time     `bun:"completed_at,nullzero"`
}
