package ingest

import (
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/invoicebot/internal/models"
)

// State of the cycle state machine
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateListing
	StateExtracting
	StateClassifying
	StateTextExtract
	StateFieldExtract
	StateAppend
	StateClosing
)

var stateNames = map[State]string{
	StateIdle:         "idle",
	StateConnecting:   "connecting",
	StateListing:      "listing",
	StateExtracting:   "extracting",
	StateClassifying:  "classifying",
	StateTextExtract:  "text_extract",
	StateFieldExtract: "field_extract",
	StateAppend:       "append",
	StateClosing:      "closing",
}

// after a finished attachment or message the cycle may move on to the
// next attachment, the next message or closing
var transitions = map[State][]State{
	StateIdle:         {StateConnecting},
	StateConnecting:   {StateListing, StateIdle},
	StateListing:      {StateExtracting, StateClosing},
	StateExtracting:   {StateClassifying, StateExtracting, StateClosing},
	StateClassifying:  {StateTextExtract, StateClassifying, StateExtracting, StateClosing},
	StateTextExtract:  {StateFieldExtract, StateClassifying, StateExtracting, StateClosing},
	StateFieldExtract: {StateAppend, StateClassifying, StateExtracting, StateClosing},
	StateAppend:       {StateClassifying, StateExtracting, StateClosing},
	StateClosing:      {StateIdle},
}

// CanTransition reports whether the cycle may move from s to next
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Report summarizes one cycle
type Report struct {
	StartedAt   time.Time              `json:"started_at"`
	FinishedAt  time.Time              `json:"finished_at"`
	Messages    int                    `json:"messages"`
	Attachments int                    `json:"attachments"`
	Skipped     int                    `json:"skipped"`
	Duplicates  int                    `json:"duplicates"`
	Appended    int                    `json:"appended"`
	MarkedSeen  int                    `json:"marked_seen"`
	Failures    map[models.Outcome]int `json:"failures,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

func newReport(now time.Time) *Report {
	return &Report{
		StartedAt: now,
		Failures:  make(map[models.Outcome]int),
	}
}

func (r *Report) count(outcome models.Outcome) {
	switch outcome {
	case models.OutcomeAppended:
		r.Appended++
	case models.OutcomeSkipped:
		r.Skipped++
	case models.OutcomeDuplicate:
		r.Duplicates++
	default:
		r.Failures[outcome]++
	}
}

// FailureCount is the number of attachments that ended in a failure outcome
func (r *Report) FailureCount() int {
	total := 0
	for _, n := range r.Failures {
		total += n
	}
	return total
}

func (r *Report) fields() []zap.Field {
	return []zap.Field{
		zap.Int("messages", r.Messages),
		zap.Int("attachments", r.Attachments),
		zap.Int("skipped", r.Skipped),
		zap.Int("duplicates", r.Duplicates),
		zap.Int("appended", r.Appended),
		zap.Int("failures", r.FailureCount()),
		zap.Int("marked_seen", r.MarkedSeen),
		zap.Duration("duration", r.FinishedAt.Sub(r.StartedAt)),
	}
}
