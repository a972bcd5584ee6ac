package simulation

import (
	"time"

	"github.com/lawnchairsociety/combatsim/internal/combat"
)

// Notice is a configuration message produced while enqueueing, such as a
// filtered selection or an inaccessible area.
type Notice struct {
	Message string `json:"message"`
}

// Progress reports dispatch and completion counts for the current run.
type Progress struct {
	RunID     string `json:"run_id"`
	Started   int    `json:"started"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

// Summary describes a finished run.
type Summary struct {
	RunID      string
	Scope      Scope
	Jobs       int
	Completed  int
	Cancelled  bool
	TestRun    int // 1-based index within a test batch, 0 outside test mode
	StartedAt  time.Time
	FinishedAt time.Time
	Player     combat.Player
	Options    combat.Options
	Table      *Table // Snapshot taken after analysis
}

// Duration returns the wall time of the run.
func (s Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Listener receives run events. Methods are called from the coordinator
// goroutine and must not block or call back into the Scheduler.
type Listener interface {
	Progress(Progress)
	Complete(Summary)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	OnProgress func(Progress)
	OnComplete func(Summary)
}

func (l ListenerFuncs) Progress(p Progress) {
	if l.OnProgress != nil {
		l.OnProgress(p)
	}
}

func (l ListenerFuncs) Complete(s Summary) {
	if l.OnComplete != nil {
		l.OnComplete(s)
	}
}

// Observer receives low-level scheduler state changes for instrumentation.
type Observer interface {
	QueueLength(n int)
	BusySlots(n int)
	JobFinished(outcome string, elapsed time.Duration)
}

// Job outcomes reported to the Observer
const (
	OutcomeSuccess   = "success"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)

type nopObserver struct{}

func (nopObserver) QueueLength(int)                   {}
func (nopObserver) BusySlots(int)                     {}
func (nopObserver) JobFinished(string, time.Duration) {}
