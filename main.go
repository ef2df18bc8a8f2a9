package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"mapforge/pkg/engine/terminal"
	"mapforge/pkg/game/builder"
	"mapforge/pkg/game/config"
	"mapforge/pkg/game/i18n"
	"mapforge/pkg/game/render"
	"mapforge/pkg/game/store"
)

// command is one CLI subcommand
type command struct {
	usage string
	run   func(ctx context.Context, args []string) error
}

var commands = map[string]command{
	"generate": {"generate [flags] prompt...  generate maps and store them", runGenerate},
	"verify":   {"verify [flags] id|file...   score stored or exported maps", runVerify},
	"replay":   {"replay [flags] script.jsonl  apply recorded calls one by one", runReplay},
	"serve":    {"serve [flags]               accept remote agents over WebSocket", runServe},
	"view":     {"view [flags] [id...]        browse stored maps in the terminal", runView},
	"dump":     {"dump [flags] id|-sample     write a debug dump or HTML page", runDump},
	"zones":    {"zones [flags] [position...] list zones and preview positions", runZones},
}

// app carries what every subcommand shares
type app struct {
	cfg config.Config
	log *slog.Logger
	msg *i18n.Catalog
	pal *render.Palette
	out io.Writer

	colour bool
}

// commonFlags are accepted by every subcommand
type commonFlags struct {
	configPath string
	verbose    bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", config.DefaultPath, "configuration file")
	fs.BoolVar(&c.verbose, "v", false, "debug logging")
}

// parseApp adds the common flags to fs, parses args and builds the app
func parseApp(fs *flag.FlagSet, args []string) (*app, error) {
	var c commonFlags
	c.register(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return newApp(c, os.Stdout)
}

func newApp(c commonFlags, out *os.File) (*app, error) {
	// the default path may be absent; an explicit one may not
	cfg, err := config.Load(c.configPath, c.configPath == config.DefaultPath)
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if c.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	msg, err := i18n.Load(cfg.Locale)
	if err != nil {
		return nil, err
	}

	colour := terminal.ColorEnabled(out)
	return &app{cfg: cfg, log: log, msg: msg, pal: render.NewPalette(colour), out: out, colour: colour}, nil
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintln(a.out, a.pal.FormatText(format, args...))
}

func (a *app) openStore() (store.Storage, error) {
	return store.Open(a.cfg.Storage)
}

// printMap draws a map, with grid reference labels when they fit the terminal
func (a *app) printMap(art *builder.Artifact) error {
	labels := terminal.FitsWidth(art.Width + 4)
	var r render.Renderer = render.TextRenderer{Labels: labels}
	if a.colour {
		r = render.ANSIRenderer{Palette: a.pal, Labels: labels}
	}
	s, err := r.Render(art)
	if err != nil {
		return err
	}
	fmt.Fprint(a.out, s)
	return nil
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: mapforge <command> [flags]")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintln(w, "  "+commands[name].usage)
	}
}

func main() {
	msg := i18n.MustLoad(i18n.DefaultLocale)
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	if os.Args[1] == "help" || os.Args[1] == "-h" || os.Args[1] == "--help" {
		usage(os.Stdout)
		return
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintln(os.Stderr, msg.Get("UNKNOWN_COMMAND"))
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.run(ctx, os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
