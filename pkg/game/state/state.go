// Package state holds the bookkeeping of one generation session: the call
// journal, feedback sent to the agent and the counters the runner enforces.
package state

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/zyedidia/generic/mapset"

	"mapforge/pkg/game/protocol"
)

// Nudge names a one-time feedback message
type Nudge string

// Feedback the runner sends at most once per session
const (
	NudgeMissingPlayer Nudge = "missing_player"
	NudgeDisconnected  Nudge = "disconnected"
	NudgeContinue      Nudge = "continue"
)

// Entry is one applied call and its result
type Entry struct {
	Index  int             `json:"index"`
	Call   protocol.Call   `json:"call"`
	Result protocol.Result `json:"result"`
	At     time.Time       `json:"at"`
}

// Session is the mutable bookkeeping of one prompt's generation
type Session struct {
	ID          string
	Prompt      string
	PromptIndex int
	Started     time.Time

	Journal  []Entry
	Messages []string

	OpsUsed           int
	Errors            int
	ConsecutiveErrors int
	Steps             int

	nudges mapset.Set[Nudge]
}

// NewSession creates a session with a fresh id
func NewSession(prompt string, index int) *Session {
	return &Session{
		ID:          ulid.Make().String(),
		Prompt:      prompt,
		PromptIndex: index,
		Started:     time.Now(),
		Messages:    make([]string, 0),
		nudges:      mapset.New[Nudge](),
	}
}

// Record appends a call and its result to the journal and updates the
// error counters
func (s *Session) Record(call protocol.Call, res protocol.Result) Entry {
	e := Entry{Index: len(s.Journal), Call: call, Result: res, At: time.Now()}
	s.Journal = append(s.Journal, e)
	s.OpsUsed++
	if res.OK {
		s.ConsecutiveErrors = 0
	} else {
		s.Errors++
		s.ConsecutiveErrors++
	}
	return e
}

// AddMessage adds a feedback message to the session's message log
func (s *Session) AddMessage(msg string) {
	const maxMessages = 20
	s.Messages = append(s.Messages, msg)

	// Keep only the last maxMessages
	if len(s.Messages) > maxMessages {
		s.Messages = s.Messages[len(s.Messages)-maxMessages:]
	}
}

// Nudged reports whether a nudge was already sent
func (s *Session) Nudged(n Nudge) bool {
	return s.nudges.Has(n)
}

// MarkNudged records that a nudge was sent; it returns false if it had
// been sent before
func (s *Session) MarkNudged(n Nudge) bool {
	if s.nudges.Has(n) {
		return false
	}
	s.nudges.Put(n)
	return true
}

// Failures returns the journal entries whose call failed
func (s *Session) Failures() []Entry {
	var out []Entry
	for _, e := range s.Journal {
		if !e.Result.OK {
			out = append(out, e)
		}
	}
	return out
}

// Calls returns the calls in the order they were applied, for replay
func (s *Session) Calls() []protocol.Call {
	out := make([]protocol.Call, len(s.Journal))
	for i, e := range s.Journal {
		out[i] = e.Call
	}
	return out
}
