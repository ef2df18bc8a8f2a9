package agent

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Batch runs many prompts through one runner with bounded parallelism.
// Sessions share nothing; a failed prompt never cancels the others.
type Batch struct {
	runner  *Runner
	workers int
	log     *slog.Logger

	// OnDone, if set, is called after each prompt. Calls may come from
	// several goroutines at once.
	OnDone func(Outcome)
}

// NewBatch returns a batch runner with at least one worker
func NewBatch(runner *Runner, workers int, log *slog.Logger) *Batch {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Batch{runner: runner, workers: workers, log: log}
}

// Run generates every prompt and returns outcomes in prompt order. Per
// prompt failures are reported in Outcome.Err; only cancellation of ctx
// makes Run itself fail.
func (b *Batch) Run(ctx context.Context, prompts []string) ([]Outcome, error) {
	outcomes := make([]Outcome, len(prompts))
	var g errgroup.Group
	g.SetLimit(b.workers)

	for i, prompt := range prompts {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out, err := b.runner.Run(ctx, i, prompt)
			out.Err = err
			outcomes[i] = out
			if err != nil {
				b.log.Warn("prompt failed", "prompt_index", i, "err", err)
			}
			if b.OnDone != nil {
				b.OnDone(out)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return outcomes, err
	}
	b.log.Info("batch finished", "generator", b.runner.Generator().Name(), "prompts", len(prompts), "workers", b.workers)
	return outcomes, nil
}
