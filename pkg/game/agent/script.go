package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"mapforge/pkg/game/protocol"
)

// Script replays recorded calls, one JSON object per line. Lines are
// grouped into steps: a blank line ends a non-empty step and a line
// {"step":true} always ends one, so two markers in a row record a step in
// which the agent stops. A script without separators is a single step.
type Script struct {
	steps [][]protocol.Call
}

type scriptLine struct {
	protocol.Call
	Step bool `json:"step,omitempty"`
}

// NewScript returns a generator that emits calls as a single step
func NewScript(calls []protocol.Call) *Script {
	return &Script{steps: [][]protocol.Call{calls}}
}

// LoadScript reads a JSON lines script. Lines starting with # are comments.
func LoadScript(r io.Reader) (*Script, error) {
	s := &Script{}
	var cur []protocol.Call
	flush := func() {
		if len(cur) > 0 {
			s.steps = append(s.steps, cur)
			cur = nil
		}
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			flush()
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		var sl scriptLine
		if err := json.Unmarshal([]byte(line), &sl); err != nil {
			return nil, fmt.Errorf("script line %d: %w", n, err)
		}
		if sl.Step {
			s.steps = append(s.steps, cur)
			cur = nil
			continue
		}
		if sl.Name == "" {
			return nil, fmt.Errorf("script line %d: missing call name", n)
		}
		if sl.ID == "" {
			sl.ID = fmt.Sprintf("script_%d", n)
		}
		cur = append(cur, sl.Call)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	flush()
	return s, nil
}

// Name returns the backend name
func (s *Script) Name() string {
	return ProviderScript
}

// Steps returns the number of recorded steps
func (s *Script) Steps() int {
	return len(s.steps)
}

// Step returns the next recorded step; the step index is the number of
// exchanges so far, so the script ignores feedback
func (s *Script) Step(ctx context.Context, conv *Conversation) (Reply, error) {
	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}
	i := len(conv.Exchanges)
	if i >= len(s.steps) {
		return Reply{}, nil
	}
	return Reply{Calls: append([]protocol.Call(nil), s.steps[i]...)}, nil
}

// WriteScript writes calls as JSON lines that LoadScript reads back
func WriteScript(w io.Writer, calls []protocol.Call) error {
	enc := json.NewEncoder(w)
	for _, c := range calls {
		if err := enc.Encode(c); err != nil {
			return err
		}
	}
	return nil
}
