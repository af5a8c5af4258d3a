// Package engine defines core types shared across subsystems.
package engine

import (
	"time"
)

// Source is one pollable remote location the engine periodically visits.
// Sources are externally supplied and read-only to the engine; identity is ID.
type Source struct {
	ID      string `json:"id"`
	Target  string `json:"target"`
	Enabled bool   `json:"enabled"`
}

// ActivityMetric tracks per-source harvest history used by the scheduler.
type ActivityMetric struct {
	RecordCount   int       `json:"record_count"`
	LastCheckedAt time.Time `json:"last_checked_at"`
}

// Author identifies who posted an extracted item.
type Author struct {
	Name   string `json:"name"`
	IsBot  bool   `json:"is_bot,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Link is a hyperlink lifted from item content or embed fields.
type Link struct {
	Kind string `json:"kind,omitempty"`
	Text string `json:"text,omitempty"`
	URL  string `json:"url"`
}

// EmbedField is a single name/value pair inside a structured embed.
type EmbedField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// StructuredPayload is the closed shape for rich embedded content. All fields
// are optional; a zero value means the item carried no embed.
type StructuredPayload struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Links       []Link       `json:"links,omitempty"`
	Images      []string     `json:"images,omitempty"`
	Thumbnail   string       `json:"thumbnail,omitempty"`
	Footer      string       `json:"footer,omitempty"`
}

// ExtractedRecord is one harvested listing, immutable once created and
// emitted downstream at most once.
type ExtractedRecord struct {
	ID                 string            `json:"id"`
	SourceID           string            `json:"source_id"`
	Author             Author            `json:"author"`
	RawText            string            `json:"raw_text"`
	Payload            StructuredPayload `json:"payload"`
	PostedAt           time.Time         `json:"posted_at,omitempty"`
	CapturedAt         time.Time         `json:"captured_at"`
	ContentFingerprint string            `json:"content_fingerprint"`
}

// FingerprintID derives the dedup alias for a content fingerprint. Items
// whose page-assigned id changed across reloads still collide on it.
func FingerprintID(fingerprint string) string {
	if len(fingerprint) > 16 {
		fingerprint = fingerprint[:16]
	}
	return "fp-" + fingerprint
}

// DedupIDs returns every id the record should be suppressed under: the
// page-assigned id plus the fingerprint alias when they differ.
func (r ExtractedRecord) DedupIDs() []string {
	alias := FingerprintID(r.ContentFingerprint)
	if alias == r.ID {
		return []string{r.ID}
	}
	return []string{r.ID, alias}
}

// FailureRecord holds per-source error state read by the failure tracker.
type FailureRecord struct {
	ConsecutiveErrors int
	LastAlertAt       time.Time
}

// SessionState is the lifecycle state of the browser session.
type SessionState string

// Session lifecycle states.
const (
	StateLoggedOut          SessionState = "LOGGED_OUT"
	StateAwaitingCredential SessionState = "AWAITING_CREDENTIAL"
	StateReady              SessionState = "READY"
	StateNavigating         SessionState = "NAVIGATING"
	StateExtracting         SessionState = "EXTRACTING"
	StateIdle               SessionState = "IDLE"
	StateSleeping           SessionState = "SLEEPING"
	StateRestarting         SessionState = "RESTARTING"
	StateClosed             SessionState = "CLOSED"
)

// StatusSnapshot is the read side of the engine exposed on the control
// surface.
type StatusSnapshot struct {
	State             SessionState         `json:"state"`
	Running           bool                 `json:"running"`
	Cycles            int64                `json:"cycles"`
	TotalChecks       int64                `json:"total_checks"`
	IdleBreaks        int64                `json:"idle_breaks"`
	MouseMoves        int64                `json:"mouse_moves"`
	Scrolls           int64                `json:"scrolls"`
	SessionStartedAt  *time.Time           `json:"session_started_at,omitempty"`
	ErrorCounts       map[string]int       `json:"error_counts"`
	LastSuccessPerSrc map[string]time.Time `json:"last_success"`
}

// InputEvent is a remote-control action injected during the credential wait.
// Type is "click" (X/Y) or "type" (Text).
type InputEvent struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Text string  `json:"text,omitempty"`
}
