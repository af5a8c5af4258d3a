package engine

import "errors"

// Outcome classifies the result of a navigation or extraction step. The
// resilience ladder composes these explicitly instead of suppressing errors.
type Outcome int

// Outcome values, from best to worst.
const (
	OutcomeOK Outcome = iota
	OutcomeRetryable
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRetryable:
		return "retryable"
	default:
		return "fatal"
	}
}

// Sentinel errors the loop branches on. ErrSessionLost and ErrStopped abort
// the current cycle; ErrLoginTimeout marks an expired interactive login wait
// and escalates to the alert sink without restarting the browser.
var (
	ErrSessionLost  = errors.New("browser session lost")
	ErrStopped      = errors.New("engine stopped")
	ErrLoginTimeout = errors.New("interactive login timed out")
)

// Classify maps an error to an Outcome. Only the small whitelist of
// session-fatal conditions escalates past the ladder.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrSessionLost):
		return OutcomeFatal
	default:
		return OutcomeRetryable
	}
}
