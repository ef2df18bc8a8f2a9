package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mapforge/pkg/engine/position"
	"mapforge/pkg/engine/world"
	"mapforge/pkg/game/agent"
	"mapforge/pkg/game/builder"
	"mapforge/pkg/game/devtools"
	"mapforge/pkg/game/protocol"
	"mapforge/pkg/game/render"
	"mapforge/pkg/game/state"
	"mapforge/pkg/game/store"
	"mapforge/pkg/game/transport"
	"mapforge/pkg/game/verify"
	"mapforge/pkg/game/viewer"
)

func runGenerate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	provider := fs.String("provider", "", "generation provider (procedural, anthropic, ollama, script, dsl)")
	script := fs.String("script", "", "recorded calls for the script provider")
	program := fs.String("program", "", "map program for the dsl provider")
	seed := fs.Int64("seed", 0, "procedural seed, 0 keeps the configured one")
	promptsFile := fs.String("prompts", "", "file with one prompt per line")
	workers := fs.Int("workers", 0, "parallel sessions, 0 keeps the configured number")
	doVerify := fs.Bool("verify", false, "verify each map after generation")
	noSave := fs.Bool("no-save", false, "do not store generated maps")
	record := fs.String("record", "", "directory that receives each session's calls as JSON lines")
	quiet := fs.Bool("q", false, "do not print maps")
	a, err := parseApp(fs, args)
	if err != nil {
		return err
	}

	prompts := fs.Args()
	if *promptsFile != "" {
		more, err := readPrompts(*promptsFile)
		if err != nil {
			return err
		}
		prompts = append(prompts, more...)
	}
	if len(prompts) == 0 {
		return errors.New("no prompts given")
	}

	opts := a.cfg.GeneratorOptions()
	if *provider != "" {
		opts.Provider = *provider
	}
	if *script != "" {
		opts.ScriptPath = *script
		if *provider == "" {
			opts.Provider = agent.ProviderScript
		}
	}
	if *program != "" {
		opts.ProgramPath = *program
		if *provider == "" {
			opts.Provider = agent.ProviderDSL
		}
	}
	if *seed != 0 {
		opts.Seed = *seed
	}
	if *workers <= 0 {
		*workers = a.cfg.Generation.Workers
	}

	gen, err := agent.NewGenerator(opts)
	if err != nil {
		return err
	}
	runner := agent.NewRunner(gen, a.cfg.RunnerConfig(), a.msg, a.log)
	outcomes, err := agent.NewBatch(runner, *workers, a.log).Run(ctx, prompts)
	if err != nil {
		return err
	}

	var st store.Storage
	if !*noSave {
		if st, err = a.openStore(); err != nil {
			return err
		}
		defer st.Close()
	}

	var arts []*builder.Artifact
	failed := 0
	for _, out := range outcomes {
		if out.Err != nil {
			failed++
			a.printf("FAIL{%s}", a.msg.Get("GENERATION_FAILED", out.Index+1, out.Err))
			continue
		}
		art := out.Artifact
		arts = append(arts, art)
		a.printf("OK{%s}", a.msg.Get("GENERATION_OK", art.ID, art.OpCount, art.Connected))
		a.printf("SUBTLE{%s}", art.Prompt)
		if !*quiet {
			if err := a.printMap(art); err != nil {
				return err
			}
		}
		for _, w := range art.Warnings {
			a.printf("SUBTLE{warning: %s (%s)}", w.Message, w.Op)
		}
		if st != nil {
			if err := st.SaveArtifact(ctx, art); err != nil {
				return err
			}
		}
		if *record != "" {
			path, err := recordSession(*record, art.ID, out.Session)
			if err != nil {
				return err
			}
			a.printf("%s", a.msg.Get("SAVED_TO", path))
		}
	}

	if *doVerify && len(arts) > 0 {
		v, err := a.newVerifier("", "")
		if err != nil {
			return err
		}
		var results []verify.Result
		for _, vo := range v.VerifyAll(ctx, arts, nil, *workers) {
			if vo.Err != nil {
				a.log.Error("verification failed", "err", vo.Err)
				continue
			}
			a.printResult(vo.Result)
			results = append(results, vo.Result)
			if st != nil {
				if err := st.SaveVerification(ctx, vo.Result); err != nil {
					return err
				}
			}
		}
		a.printSummary(verify.Summarize(results))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d prompts failed", failed, len(prompts))
	}
	return nil
}

func readPrompts(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var prompts []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		prompts = append(prompts, line)
	}
	return prompts, sc.Err()
}

func recordSession(dir, id string, sess *state.Session) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, id+".jsonl")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := agent.WriteScript(f, sess.Calls()); err != nil {
		return "", err
	}
	return path, nil
}

func (a *app) newVerifier(provider, judgmentPath string) (*verify.Verifier, error) {
	engine, err := verify.NewEngine(a.cfg.Verification.Config)
	if err != nil {
		return nil, err
	}
	if provider == "" {
		provider = a.cfg.Verification.Provider
	}
	if judgmentPath == "" {
		judgmentPath = a.cfg.Verification.JudgmentFile
	}
	judge, err := agent.NewJudge(provider, a.cfg.JudgeClient(), judgmentPath)
	if err != nil {
		return nil, err
	}
	return verify.NewVerifier(engine, judge, render.Describe, a.log), nil
}

func (a *app) printResult(r verify.Result) {
	if r.Passed {
		a.printf("OK{%s} %s", a.msg.Get("VERIFICATION_PASSED", r.Score), r.ArtifactID)
	} else {
		a.printf("FAIL{%s} %s", a.msg.Get("VERIFICATION_FAILED", r.Score), r.ArtifactID)
	}
	for _, c := range r.FailedChecks() {
		a.printf("  SUBTLE{%s: expected %s, got %s}", c.Name, c.Expected, c.Actual)
	}
	for _, f := range r.Flags {
		a.printf("  SUBTLE{flag %s}", f)
	}
}

func (a *app) printSummary(s verify.Summary) {
	a.printf("HEAD{%s}", a.msg.Get("SUMMARY", s.Total, s.Passed, s.Failed, s.AverageScore))
	if len(s.CommonFailures) == 0 {
		return
	}
	a.printf("%s", a.msg.Get("COMMON_FAILURES"))
	for _, f := range s.CommonFailures {
		a.printf("  %s: %d (%.0f%%)", f.Category, f.Count, f.Percent)
	}
}

// loadArtifact reads an exported artifact file, or a stored map by id
func loadArtifact(ctx context.Context, st store.Storage, ref string) (*builder.Artifact, error) {
	if data, err := os.ReadFile(ref); err == nil {
		return builder.DecodeArtifact(data)
	}
	return st.LoadArtifact(ctx, ref)
}

// loadArtifacts resolves refs, or every stored map when refs is empty
func loadArtifacts(ctx context.Context, st store.Storage, refs []string) ([]*builder.Artifact, error) {
	if len(refs) == 0 {
		list, err := st.ListArtifacts(ctx)
		if err != nil {
			return nil, err
		}
		for _, s := range list {
			refs = append(refs, s.ID)
		}
	}
	arts := make([]*builder.Artifact, 0, len(refs))
	for _, ref := range refs {
		art, err := loadArtifact(ctx, st, ref)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ref, err)
		}
		arts = append(arts, art)
	}
	return arts, nil
}

func runVerify(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	manifestPath := fs.String("manifest", "", "YAML or JSON manifest used instead of one derived from the prompt")
	judge := fs.String("judge", "", "judge provider (none, anthropic, ollama, file)")
	judgment := fs.String("judgment", "", "judgment record for the file judge")
	workers := fs.Int("workers", 0, "parallel verifications, 0 keeps the configured number")
	a, err := parseApp(fs, args)
	if err != nil {
		return err
	}
	if *judgment != "" && *judge == "" {
		*judge = agent.ProviderFile
	}
	if *workers <= 0 {
		*workers = a.cfg.Generation.Workers
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	arts, err := loadArtifacts(ctx, st, fs.Args())
	if err != nil {
		return err
	}
	if len(arts) == 0 {
		return errors.New("no maps to verify")
	}

	var manifests []*verify.Manifest
	if *manifestPath != "" {
		m, err := verify.LoadManifest(*manifestPath)
		if err != nil {
			return err
		}
		for range arts {
			manifests = append(manifests, &m)
		}
	}

	v, err := a.newVerifier(*judge, *judgment)
	if err != nil {
		return err
	}
	var results []verify.Result
	var firstErr error
	for _, vo := range v.VerifyAll(ctx, arts, manifests, *workers) {
		if vo.Err != nil {
			a.log.Error("verification failed", "err", vo.Err)
			if firstErr == nil {
				firstErr = vo.Err
			}
			continue
		}
		a.printResult(vo.Result)
		results = append(results, vo.Result)
		// exported files may not be in the store
		if err := st.SaveVerification(ctx, vo.Result); err != nil {
			a.log.Warn("verification not stored", "artifact", vo.Result.ArtifactID, "err", err)
		}
	}
	a.printSummary(verify.Summarize(results))
	return firstErr
}

func runReplay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	prompt := fs.String("prompt", "", "prompt attached to the replayed map")
	save := fs.Bool("save", false, "store the finished map")
	a, err := parseApp(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("replay takes exactly one script file")
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	script, err := agent.LoadScript(f)
	f.Close()
	if err != nil {
		return err
	}

	runner := agent.NewRunner(script, a.cfg.RunnerConfig(), a.msg, a.log)
	out, runErr := runner.Run(ctx, 0, *prompt)
	if out.Session != nil {
		for _, e := range out.Session.Journal {
			if e.Result.OK {
				a.printf("OK{%3d} %-20s %s", e.Index+1, e.Call.Name, e.Result.Message)
			} else {
				a.printf("FAIL{%3d} %-20s %s", e.Index+1, e.Call.Name, e.Result.Message)
			}
		}
	}
	if runErr != nil {
		return runErr
	}

	art := out.Artifact
	a.printf("OK{%s}", a.msg.Get("GENERATION_OK", art.ID, art.OpCount, art.Connected))
	if err := a.printMap(art); err != nil {
		return err
	}
	if *save {
		st, err := a.openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		return st.SaveArtifact(ctx, art)
	}
	return nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", ":8080", "listen address")
	doVerify := fs.Bool("verify", true, "verify maps when a remote session finalizes")
	a, err := parseApp(fs, args)
	if err != nil {
		return err
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	opts := transport.Options{
		Grid:          a.cfg.GridLimits(),
		MaxOperations: a.cfg.Generation.MaxOperations,
		Catalog:       a.msg,
		Log:           a.log,
	}
	if *doVerify {
		if opts.Verifier, err = a.newVerifier("", ""); err != nil {
			return err
		}
	}
	a.printf("HEAD{%s}", a.msg.Get("SERVER_LISTENING", *addr))
	err = transport.NewServer(st, opts).ListenAndServe(ctx, *addr)
	a.printf("%s", a.msg.Get("GOODBYE"))
	return err
}

func runView(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	sample := fs.Bool("sample", false, "view the built-in sample map")
	a, err := parseApp(fs, args)
	if err != nil {
		return err
	}

	var arts []*builder.Artifact
	if *sample {
		art, err := devtools.BuildSample()
		if err != nil {
			return err
		}
		arts = append(arts, art)
	} else {
		st, err := a.openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		if arts, err = loadArtifacts(ctx, st, fs.Args()); err != nil {
			return err
		}
	}
	if len(arts) == 0 {
		return errors.New("no maps to view")
	}
	return viewer.Show(ctx, arts...)
}

func runDump(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	sample := fs.Bool("sample", false, "dump the built-in sample map")
	out := fs.String("o", "", "output path (default map.txt, or map.html with -html)")
	html := fs.Bool("html", false, "write an HTML page instead of a text dump")
	a, err := parseApp(fs, args)
	if err != nil {
		return err
	}

	var art *builder.Artifact
	switch {
	case *sample:
		if art, err = devtools.BuildSample(); err != nil {
			return err
		}
	case fs.NArg() == 1:
		st, err := a.openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		if art, err = loadArtifact(ctx, st, fs.Arg(0)); err != nil {
			return err
		}
	default:
		return errors.New("dump takes one map id, or -sample")
	}

	if *html {
		path := *out
		if path == "" {
			path = "map.html"
		}
		if err := devtools.SaveHTML(art, path); err != nil {
			return err
		}
		a.printf("%s", a.msg.Get("SAVED_TO", path))
		return nil
	}
	path, err := devtools.DumpArtifactToFile(art, *out)
	if err != nil {
		return err
	}
	a.printf("%s", a.msg.Get("SAVED_TO", path))
	return nil
}

func runZones(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("zones", flag.ExitOnError)
	width := fs.Int("width", 0, "grid width, 0 keeps the configured default")
	height := fs.Int("height", 0, "grid height, 0 keeps the configured default")
	a, err := parseApp(fs, args)
	if err != nil {
		return err
	}
	if *width <= 0 {
		*width = a.cfg.Grid.DefaultWidth
	}
	if *height <= 0 {
		*height = a.cfg.Grid.DefaultHeight
	}

	r := position.NewResolver(*width, *height, world.NewLandmarkRegistry())
	for _, z := range r.Zones().Zones() {
		a.printf("HEAD{%-10s} %s-%s  center %s  SUBTLE{%s}", z.Name,
			world.Pt(z.Bounds.X1, z.Bounds.Y1), world.Pt(z.Bounds.X2, z.Bounds.Y2), z.Center,
			position.GridRef(z.Center))
	}
	fmt.Fprintln(a.out)
	fmt.Fprint(a.out, r.Help())

	// any arguments are previewed as positions
	for _, expr := range fs.Args() {
		t, err := r.Resolve(expr)
		if err != nil {
			a.printf("FAIL{%s}: %v", expr, err)
			continue
		}
		a.printf("OK{%s}: %s", expr, protocol.Describe(t))
	}
	return nil
}
