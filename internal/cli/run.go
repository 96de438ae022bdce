package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"memorylane/internal/fs"
	"memorylane/internal/index"
	"memorylane/internal/indexer"
	"memorylane/internal/journal"
	"memorylane/internal/syncer"
	"memorylane/internal/writer"
)

const (
	minArgs  = 2
	helpFlag = "--help"
)

// Run is the main entry point. Returns exit code.
func Run(ctx context.Context, out, errOut io.Writer, args []string, env map[string]string) int {
	if len(args) < minArgs {
		printUsage(out)

		return 0
	}

	flags, err := parseGlobalFlags(args[1:])
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	workDir := flags.workDir
	if workDir == "" {
		workDir, err = os.Getwd()
		if err != nil {
			fprintln(errOut, "error: cannot get working directory:", err)

			return 1
		}
	}

	overrides := Config{Root: flags.root, Verbose: flags.verbose}

	cfg, sources, err := LoadConfig(workDir, flags.configPath, overrides, flags.root != "", env)
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut)

		return 1
	}

	rootAbs := cfg.Root
	if !filepath.IsAbs(rootAbs) {
		rootAbs = filepath.Join(workDir, rootAbs)
	}

	if len(flags.remaining) == 0 {
		printUsage(out)

		return 0
	}

	name := flags.remaining[0]
	if name == "-h" || name == helpFlag {
		printUsage(out)

		return 0
	}

	ioCtx := NewIO(out, errOut)
	app := &app{cfg: cfg, sources: sources, root: rootAbs, errOut: errOut}

	cmd, ok := app.commands()[name]
	if !ok {
		fprintln(errOut, "error: unknown command:", name)
		printUsage(errOut)

		return 1
	}

	if code := cmd.Run(ctx, ioCtx, flags.remaining[1:]); code != 0 {
		return code
	}

	return ioCtx.Finish()
}

// app carries the resolved configuration into command handlers.
type app struct {
	cfg     Config
	sources ConfigSources
	root    string
	errOut  io.Writer
}

func (a *app) logger() journal.Logger {
	level := slog.LevelInfo
	if a.cfg.Verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(a.errOut, &slog.HandlerOptions{Level: level})

	return journal.NewSlogLogger(slog.New(handler))
}

// engine bundles the wired components behind the service facade.
type engine struct {
	lock    *fs.Lock
	store   *index.Store
	indexer *indexer.Indexer
	syncer  *syncer.Syncer
	service *journal.Service
	log     journal.Logger
}

// lockFileName is the advisory lock file inside the index directory.
// Rebuilds swap the database file by rename, so two processes sharing
// one index must be excluded at the engine level.
const lockFileName = "engine.lock"

// openEngine wires store, writer, indexer, and syncer over the journal
// root. The root directory must exist; the index directory is created
// on demand. Holds an exclusive lock on the index for the lifetime of
// the engine.
func (a *app) openEngine(ctx context.Context) (*engine, error) {
	info, err := os.Stat(a.root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("journal root %s does not exist (run memorylane init)", a.root)
	}

	lock, err := fs.AcquireLock(filepath.Join(a.root, index.DirName, lockFileName))
	if err != nil {
		if errors.Is(err, fs.ErrLocked) {
			return nil, fmt.Errorf("index in use by another memorylane process: %w", err)
		}

		return nil, err
	}

	store, err := index.Open(ctx, index.PathFor(a.root))
	if err != nil {
		_ = lock.Close()

		return nil, err
	}

	log := a.logger()
	fsys := fs.NewReal()

	w := writer.New(fsys, a.root, store, nil, nil, log)
	idx := indexer.New(fsys, a.root, store, nil, nil, log)
	sync := syncer.New(fsys, a.root, store, idx, nil, log)

	return &engine{
		lock:    lock,
		store:   store,
		indexer: idx,
		syncer:  sync,
		service: journal.NewService(w, idx, sync, log),
		log:     log,
	}, nil
}

func (e *engine) close() {
	_ = e.store.Close()
	_ = e.lock.Close()
}

// reportRebuild prints a rebuild summary and surfaces per-file issues
// as warnings.
func reportRebuild(o *IO, res journal.RebuildResult) {
	o.Printf("indexed %d years, %d events, %d items, %d canvas placements\n",
		res.Years, res.Events, res.Items, res.CanvasItems)

	for _, issue := range res.Issues {
		o.Warn(issue.String())
	}
}

func printUsage(w io.Writer) {
	fprintln(w, "Usage: memorylane [-C dir] [-c config] [--root dir] <command> [flags]")
	fprintln(w)
	fprintln(w, "A file-first memory journal: markdown files are the source of")
	fprintln(w, "truth, the SQLite index is a rebuildable cache.")
	fprintln(w)
	fprintln(w, "Commands:")
	fprintln(w, "  init                   create a journal root and empty index")
	fprintln(w, "  reindex                rebuild the index from the file tree")
	fprintln(w, "  sync                   check for external edits, rebuild if any")
	fprintln(w, "  watch                  watch the tree and sync continuously")
	fprintln(w, "  recover                synthesize missing descriptors, then rebuild")
	fprintln(w, "  migrate --db <path>    export a legacy database into the tree")
	fprintln(w, "  status                 show index contents and bookkeeping")
	fprintln(w, "  print-config           show the effective configuration")
	fprintln(w)
	fprintln(w, "Global flags:")
	fprintln(w, "  -C, --cwd <dir>        run as if started in <dir>")
	fprintln(w, "  -c, --config <file>    explicit config file")
	fprintln(w, "      --root <dir>       journal root (overrides config)")
	fprintln(w, "  -v, --verbose          debug logging")
}

type globalFlags struct {
	workDir    string
	configPath string
	root       string
	verbose    bool
	remaining  []string
}

func parseGlobalFlags(args []string) (globalFlags, error) {
	var flags globalFlags

	idx := 0
	for idx < len(args) {
		consumed, err := parseFlag(args, idx, &flags)
		if err != nil {
			return globalFlags{}, err
		}

		if consumed == 0 {
			// Not a flag, this is the command
			flags.remaining = args[idx:]

			break
		}

		idx += consumed
	}

	return flags, nil
}

// parseFlag tries to parse a flag at args[idx]. Returns number of args
// consumed (0 if not a flag).
func parseFlag(args []string, idx int, flags *globalFlags) (int, error) {
	arg := args[idx]

	set := func(target *string, short, long string) (int, bool, error) {
		if (short != "" && arg == short) || arg == long {
			if idx+1 >= len(args) {
				return 0, true, fmt.Errorf("flag requires an argument: %s", arg)
			}

			*target = args[idx+1]

			return 2, true, nil
		}

		if after, ok := strings.CutPrefix(arg, long+"="); ok {
			*target = after

			return 1, true, nil
		}

		return 0, false, nil
	}

	if n, ok, err := set(&flags.workDir, "-C", "--cwd"); ok {
		return n, err
	}

	if after, ok := strings.CutPrefix(arg, "-C"); ok && after != "" {
		flags.workDir = after

		return 1, nil
	}

	if n, ok, err := set(&flags.configPath, "-c", "--config"); ok {
		return n, err
	}

	if n, ok, err := set(&flags.root, "", "--root"); ok {
		return n, err
	}

	if arg == "-v" || arg == "--verbose" {
		flags.verbose = true

		return 1, nil
	}

	if arg == "-h" || arg == helpFlag {
		flags.remaining = []string{helpFlag}

		return len(args) - idx, nil
	}

	if strings.HasPrefix(arg, "-") && arg != "-" {
		return 0, fmt.Errorf("unknown flag: %s", arg)
	}

	return 0, nil
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}
