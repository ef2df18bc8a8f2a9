package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"mapforge/pkg/engine/world"
	"mapforge/pkg/game/builder"
)

// Judge gives a qualitative opinion on a rendered map. Implementations
// return the judge's raw reply; parsing is done here.
type Judge interface {
	Name() string
	Judge(ctx context.Context, prompt, rendering string) (string, error)
}

// FileJudge replays a judgment record stored as a file
type FileJudge struct {
	Path string
}

// Name returns "file"
func (f FileJudge) Name() string { return "file" }

// Judge returns the file contents as the judge's reply
func (f FileJudge) Judge(ctx context.Context, prompt, rendering string) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("read judgment: %w", err)
	}
	return string(data), nil
}

// RenderFunc turns an artifact into the text a judge reads
type RenderFunc func(*builder.Artifact) string

// Verifier runs the engine with an optional judge
type Verifier struct {
	engine *Engine
	judge  Judge
	render RenderFunc
	log    *slog.Logger
}

// NewVerifier wires an engine to a judge. A nil judge scores
// quantitatively only.
func NewVerifier(engine *Engine, judge Judge, render RenderFunc, log *slog.Logger) *Verifier {
	if log == nil {
		log = slog.Default()
	}
	return &Verifier{engine: engine, judge: judge, render: render, log: log}
}

// Engine returns the scoring engine
func (v *Verifier) Engine() *Engine {
	return v.engine
}

// Verify scores one artifact. A nil manifest is derived from the artifact's
// prompt. Judge call failures are returned as errors; malformed replies are
// not.
func (v *Verifier) Verify(ctx context.Context, art *builder.Artifact, m *Manifest) (Result, error) {
	manifest := DeriveManifest(art.Prompt)
	if m != nil {
		manifest = *m
	}
	log := v.log.With("artifact", art.ID)

	if v.judge == nil {
		res := v.engine.Verify(art, manifest, nil)
		log.Debug("verified without judge", "score", res.Score, "passed", res.Passed)
		return res, nil
	}

	rendering := ""
	if v.render != nil {
		rendering = v.render(art)
	}
	reply, err := v.judge.Judge(ctx, art.Prompt, rendering)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		log.Error("judge failed", "judge", v.judge.Name(), "error", err)
		return Result{}, err
	}

	res, err := v.engine.VerifyReply(art, manifest, reply)
	if err != nil {
		if !errors.Is(err, world.ErrJudgmentParse) {
			return Result{}, err
		}
		log.Warn("judge reply malformed, scoring quantitatively", "judge", v.judge.Name(), "error", err)
	}
	log.Debug("verified", "score", res.Score, "passed", res.Passed, "flags", res.Flags)
	return res, nil
}

// Outcome is one artifact's verification in a batch
type Outcome struct {
	Result Result
	Err    error
}

// VerifyAll verifies artifacts with at most workers judge calls in flight.
// Outcomes are in artifact order; one failure does not stop the others.
// manifests may be nil or hold nil entries to derive from prompts.
func (v *Verifier) VerifyAll(ctx context.Context, arts []*builder.Artifact, manifests []*Manifest, workers int) []Outcome {
	if workers < 1 {
		workers = 1
	}
	out := make([]Outcome, len(arts))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, art := range arts {
		var m *Manifest
		if i < len(manifests) {
			m = manifests[i]
		}
		g.Go(func() error {
			res, err := v.Verify(ctx, art, m)
			out[i] = Outcome{Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
