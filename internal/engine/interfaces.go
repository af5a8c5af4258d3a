package engine

import (
	"context"
	"time"
)

// SourceProvider returns the authoritative source list. Refresh is called once
// per cycle; implementations should not cache beyond that. An empty result is
// non-fatal to the caller.
type SourceProvider interface {
	Refresh(ctx context.Context) ([]Source, error)
}

// RecordSink receives batches of freshly extracted records. The engine only
// advances its dedup windows after Emit returns nil.
type RecordSink interface {
	Emit(ctx context.Context, records []ExtractedRecord) error
}

// AlertCategory labels an alert for cooldown gating.
type AlertCategory string

// Alert categories raised by the engine. CategorySessionLost is never
// suppressed by cooldowns.
const (
	CategorySourceFailure AlertCategory = "source_failure"
	CategoryLoginTimeout  AlertCategory = "login_timeout"
	CategorySessionLost   AlertCategory = "session_lost"
)

// AlertSink delivers escalation notices. Best-effort: failures are logged by
// implementations and never propagate into the engine loop.
type AlertSink interface {
	Notify(ctx context.Context, category AlertCategory, subject, body string) error
}

// BlobStore persists opaque byte blobs (session credentials and state
// mirrors) under string keys.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// FrameSink receives JPEG frame captures published during the credential
// wait so an operator can complete an interactive login.
type FrameSink interface {
	Frame(jpeg []byte)
}

// Hasher computes digests for content fingerprints.
type Hasher interface {
	Hash(data []byte) string
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
