// Package audit writes the append-only audit trail. Every state-changing
// operation records an entry; a failed audit write must never fail the
// operation that triggered it.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Entry is one appended audit record.
type Entry struct {
	ID        int64          `json:"id"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	Target    string         `json:"target,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Recorder appends audit entries. Implementations swallow their own errors.
type Recorder interface {
	Record(ctx context.Context, actor, action, target string, details map[string]any)
}

// PGRecorder writes entries to the audit_logs table.
type PGRecorder struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewPGRecorder(pool *pgxpool.Pool, logger zerolog.Logger) *PGRecorder {
	return &PGRecorder{pool: pool, logger: logger}
}

func (r *PGRecorder) Record(ctx context.Context, actor, action, target string, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	data, err := json.Marshal(details)
	if err != nil {
		r.logger.Warn().Err(err).Str("action", action).Msg("audit details not serializable, dropped")
		data = []byte("{}")
	}
	// Detached from the caller's cancellation so shutdown does not lose the
	// trail for work that already happened.
	_, err = r.pool.Exec(context.WithoutCancel(ctx), `
		INSERT INTO audit_logs (actor, action, target, details)
		VALUES ($1, $2, $3, $4)`,
		actor, action, target, data)
	if err != nil {
		r.logger.Warn().Err(err).Str("action", action).Str("target", target).
			Msg("audit insert failed (non-fatal)")
	}
}

// MemoryRecorder collects entries for tests.
type MemoryRecorder struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryRecorder() *MemoryRecorder { return &MemoryRecorder{} }

func (r *MemoryRecorder) Record(_ context.Context, actor, action, target string, details map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{
		Actor:     actor,
		Action:    action,
		Target:    target,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	})
}

// Entries returns a snapshot of recorded entries.
func (r *MemoryRecorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// ByAction filters recorded entries by action name.
func (r *MemoryRecorder) ByAction(action string) []Entry {
	var out []Entry
	for _, e := range r.Entries() {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// Redact masks credential-bearing keys in audit details before they are
// returned to API clients.
func Redact(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		out[k] = v
	}
	for _, k := range []string{"authorization", "token", "access_token", "id_token"} {
		if _, ok := out[k]; ok {
			out[k] = "***"
		}
	}
	return out
}
