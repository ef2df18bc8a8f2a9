package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"mapforge/pkg/engine/world"
	"mapforge/pkg/game/builder"
	"mapforge/pkg/game/i18n"
	"mapforge/pkg/game/protocol"
	"mapforge/pkg/game/state"
)

// Limits bounds one generation session
type Limits struct {
	MaxOperations        int
	MaxConsecutiveErrors int
	ConnectivityFeedback bool
}

// DefaultLimits returns 60 operations, 8 consecutive errors and
// connectivity feedback on
func DefaultLimits() Limits {
	return Limits{MaxOperations: 60, MaxConsecutiveErrors: 8, ConnectivityFeedback: true}
}

// RunnerConfig configures a Runner
type RunnerConfig struct {
	Limits Limits
	Grid   builder.Limits
	Width  int
	Height int
}

// Runner applies a generator's calls to a fresh session per prompt
type Runner struct {
	gen Generator
	cfg RunnerConfig
	msg *i18n.Catalog
	log *slog.Logger
}

// Outcome is the result of one generation
type Outcome struct {
	Index    int
	Prompt   string
	Session  *state.Session
	Artifact *builder.Artifact
	Err      error
}

// NewRunner wires a generator to the session rules
func NewRunner(gen Generator, cfg RunnerConfig, msg *i18n.Catalog, log *slog.Logger) *Runner {
	if cfg.Limits.MaxOperations <= 0 {
		cfg.Limits.MaxOperations = DefaultLimits().MaxOperations
	}
	if cfg.Limits.MaxConsecutiveErrors <= 0 {
		cfg.Limits.MaxConsecutiveErrors = DefaultLimits().MaxConsecutiveErrors
	}
	if cfg.Width <= 0 {
		cfg.Width = 20
	}
	if cfg.Height <= 0 {
		cfg.Height = 15
	}
	if msg == nil {
		msg = i18n.MustLoad(i18n.DefaultLocale)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{gen: gen, cfg: cfg, msg: msg, log: log}
}

// Generator returns the runner's generator
func (r *Runner) Generator() Generator {
	return r.gen
}

// session is the per-run state shared by the loop helpers
type session struct {
	sess      *state.Session
	d         *protocol.Dispatcher
	conv      *Conversation
	log       *slog.Logger
	finalized bool
	exhausted bool
}

// Run generates one map. A cancelled ctx discards the session and returns
// ctx's error; the outcome still carries the journal for inspection.
func (r *Runner) Run(ctx context.Context, index int, prompt string) (Outcome, error) {
	s := &session{
		sess: state.NewSession(prompt, index),
		d:    protocol.NewDispatcher(builder.New(r.cfg.Grid), r.msg),
		conv: &Conversation{Prompt: prompt, Width: r.cfg.Width, Height: r.cfg.Height},
	}
	s.log = r.log.With("session", s.sess.ID, "prompt_index", index)
	out := Outcome{Index: index, Prompt: prompt, Session: s.sess}
	s.log.Info("generation started", "generator", r.gen.Name(), "prompt", prompt)

	for !s.finalized && !s.exhausted {
		if err := ctx.Err(); err != nil {
			s.log.Warn("generation cancelled", "err", err)
			return out, err
		}
		reply, err := r.gen.Step(ctx, s.conv)
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return out, cerr
			}
			s.log.Error("generator step failed", "step", s.sess.Steps, "err", err)
			return out, fmt.Errorf("%s step %d: %w", r.gen.Name(), s.sess.Steps, err)
		}
		s.sess.Steps++

		ex := Exchange{Text: reply.Text, Calls: reply.Calls}
		if len(reply.Calls) == 0 {
			if fb := r.stopFeedback(s); fb != "" {
				ex.Feedback = fb
				s.sess.AddMessage(fb)
				s.conv.Exchanges = append(s.conv.Exchanges, ex)
				continue
			}
			s.conv.Exchanges = append(s.conv.Exchanges, ex)
			break
		}

		err = r.apply(s, &ex)
		s.conv.Exchanges = append(s.conv.Exchanges, ex)
		if err != nil {
			return out, err
		}
	}

	if !s.finalized {
		if err := r.forceFinalize(s); err != nil {
			return out, err
		}
	}

	art, err := s.d.Builder().Artifact(prompt, r.gen.Name())
	if err != nil {
		return out, err
	}
	out.Artifact = art
	s.log.Info("generation finished", "ops", s.sess.OpsUsed, "errors", s.sess.Errors,
		"connected", art.Connected, "entities", len(art.Entities))
	return out, nil
}

// stopFeedback is the one-time message sent when the agent stops early
func (r *Runner) stopFeedback(s *session) string {
	b := s.d.Builder()
	if !b.HasGrid() && s.sess.MarkNudged(state.NudgeContinue) {
		return r.msg.Get("FEEDBACK_CONTINUE")
	}
	if b.HasGrid() && !b.HasPlayer() && s.sess.MarkNudged(state.NudgeMissingPlayer) {
		return r.msg.Get("FEEDBACK_MISSING_PLAYER")
	}
	return ""
}

// apply runs one reply's calls in order and fills ex.Results in parallel
// to ex.Calls
func (r *Runner) apply(s *session, ex *Exchange) error {
	for _, call := range ex.Calls {
		switch {
		case s.finalized:
			ex.Results = append(ex.Results, skipped(call, world.KindSessionFinalized, "not applied: the map is already finalized"))
			continue
		case s.exhausted || s.sess.OpsUsed >= r.cfg.Limits.MaxOperations:
			if !s.exhausted {
				s.log.Warn("operation budget exhausted", "max_operations", r.cfg.Limits.MaxOperations)
			}
			s.exhausted = true
			ex.Results = append(ex.Results, skipped(call, world.KindBudgetExhausted, "not applied: operation budget exhausted"))
			continue
		}

		var res protocol.Result
		if fb, ok := r.connectivityHold(s, call); ok {
			res = protocol.Result{CallID: call.ID, Op: call.Name, OK: false, Message: fb}
			ex.Feedback = fb
			s.sess.AddMessage(fb)
		} else {
			res = s.d.Dispatch(call)
		}
		s.sess.Record(call, res)
		ex.Results = append(ex.Results, res)
		s.log.Debug("operation applied", "op", call.Name, "ok", res.OK, "call_id", call.ID)

		if call.Name == protocol.OpFinalize && res.OK {
			s.finalized = true
		}
		if s.sess.ConsecutiveErrors > r.cfg.Limits.MaxConsecutiveErrors {
			s.log.Error("too many consecutive errors", "count", s.sess.ConsecutiveErrors)
			return world.Errorf(world.KindBudgetExhausted, "%d consecutive operation errors, last: %s",
				s.sess.ConsecutiveErrors, res.Message)
		}
	}
	return nil
}

// connectivityHold intercepts the first finalize of a disconnected map and
// returns the repair hint instead of applying it
func (r *Runner) connectivityHold(s *session, call protocol.Call) (string, bool) {
	if call.Name != protocol.OpFinalize || !r.cfg.Limits.ConnectivityFeedback {
		return "", false
	}
	b := s.d.Builder()
	if !b.HasGrid() || !b.HasPlayer() || b.Finalized() || s.sess.Nudged(state.NudgeDisconnected) {
		return "", false
	}
	rep := b.Connectivity()
	if rep.Connected {
		return "", false
	}
	s.sess.MarkNudged(state.NudgeDisconnected)
	s.log.Info("holding finalize for connectivity repair", "reachable", rep.Reachable, "passable", rep.Passable)
	return r.msg.Get("FEEDBACK_DISCONNECTED", rep.Reachable, rep.Passable, describeRegions(rep.Regions)), true
}

// forceFinalize closes a session the agent left open
func (r *Runner) forceFinalize(s *session) error {
	call := protocol.Call{ID: "runner_finalize", Name: protocol.OpFinalize}
	res := s.d.Dispatch(call)
	s.sess.Record(call, res)
	s.log.Info("forced finalize", "ok", res.OK, "budget_exhausted", s.exhausted)
	if res.OK {
		s.finalized = true
		return nil
	}
	if s.exhausted {
		return world.Errorf(world.KindBudgetExhausted, "operation budget of %d used up and finalize failed: %s",
			r.cfg.Limits.MaxOperations, res.Message)
	}
	kind := world.KindMissingPlayer
	if res.Error != nil {
		kind = world.Kind(res.Error.Kind)
	}
	return world.Errorf(kind, "agent stopped and finalize failed: %s", res.Message)
}

func skipped(call protocol.Call, kind world.Kind, msg string) protocol.Result {
	return protocol.Result{
		CallID:  call.ID,
		Op:      call.Name,
		OK:      false,
		Message: msg,
		Error:   &protocol.ErrorInfo{Kind: string(kind), Message: msg},
	}
}

func describeRegions(regions []world.Region) string {
	if len(regions) == 0 {
		return "none"
	}
	parts := make([]string, len(regions))
	for i, reg := range regions {
		parts[i] = fmt.Sprintf("%d tiles around %v", reg.Size, reg.Centroid)
	}
	return strings.Join(parts, ", ")
}
