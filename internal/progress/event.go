// Package progress defines the event structures emitted by the engine loop.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageCycleStart     Stage = "CYCLE_START"
	StageCycleDone      Stage = "CYCLE_DONE"
	StageVisitStart     Stage = "VISIT_START"
	StageVisitDone      Stage = "VISIT_DONE"
	StageRecordsEmitted Stage = "RECORDS_EMITTED"
	StageIdleBreak      Stage = "IDLE_BREAK"
	StageLongSleep      Stage = "LONG_SLEEP"
	StageLoginWait      Stage = "LOGIN_WAIT"
	StageSessionRestart Stage = "SESSION_RESTART"
)

// Event captures a single milestone of engine progress.
type Event struct {
	// CycleID identifies one pass over a scheduled batch, 16-byte UUID form.
	CycleID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// SourceID scopes visit and emit events to one source.
	SourceID string
	// Records carries the batch size for RECORDS_EMITTED events.
	Records int64
	// Outcome labels visit completions (ok, retryable, fatal).
	Outcome string
	// Dur captures the wall time of visits, cycles, and pauses.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.CycleID == [16]byte{} {
		return errors.New("cycle id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageCycleStart, StageCycleDone, StageIdleBreak, StageLongSleep,
		StageLoginWait, StageSessionRestart:
	case StageVisitStart:
		if e.SourceID == "" {
			return errors.New("visit start requires source id")
		}
	case StageVisitDone:
		if e.SourceID == "" {
			return errors.New("visit done requires source id")
		}
		if e.Outcome == "" {
			return errors.New("visit done requires outcome")
		}
	case StageRecordsEmitted:
		if e.SourceID == "" {
			return errors.New("records emitted requires source id")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// CycleUUID converts the binary cycle ID to uuid.UUID.
func (e Event) CycleUUID() uuid.UUID {
	return uuid.UUID(e.CycleID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
