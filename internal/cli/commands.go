package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"memorylane/internal/fs"
	"memorylane/internal/index"
	"memorylane/internal/migrate"
	"memorylane/internal/syncer"
)

func (a *app) commands() map[string]*Command {
	cmds := []*Command{
		a.cmdInit(),
		a.cmdReindex(),
		a.cmdSync(),
		a.cmdWatch(),
		a.cmdRecover(),
		a.cmdMigrate(),
		a.cmdStatus(),
		a.cmdPrintConfig(),
	}

	byName := make(map[string]*Command, len(cmds))
	for _, c := range cmds {
		byName[c.Name()] = c
	}

	return byName
}

func (a *app) cmdInit() *Command {
	flags := flag.NewFlagSet("init", flag.ContinueOnError)
	year := flags.Int("year", time.Now().Year(), "first year folder to create")

	return &Command{
		Flags: flags,
		Usage: "init [--year <yyyy>]",
		Short: "create a journal root and empty index",
		Long: "Creates the journal root directory, the index database, and\n" +
			"a folder for the given year (the current year by default).",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			if err := os.MkdirAll(a.root, 0o755); err != nil {
				return fmt.Errorf("create journal root: %w", err)
			}

			eng, err := a.openEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.close()

			if _, err := eng.service.EnsureYear(ctx, *year); err != nil {
				return err
			}

			o.Println("initialized journal at", a.root)

			return nil
		},
	}
}

func (a *app) cmdReindex() *Command {
	return &Command{
		Flags: flag.NewFlagSet("reindex", flag.ContinueOnError),
		Usage: "reindex",
		Short: "rebuild the index from the file tree",
		Long: "Scans every year and event folder and rebuilds the index from\n" +
			"scratch. The existing index is replaced atomically; files the\n" +
			"scan cannot read are reported and skipped.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			eng, err := a.openEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.close()

			res, err := eng.service.Rebuild(ctx)
			if err != nil {
				return err
			}

			reportRebuild(o, res)

			return nil
		},
	}
}

func (a *app) cmdSync() *Command {
	return &Command{
		Flags: flag.NewFlagSet("sync", flag.ContinueOnError),
		Usage: "sync",
		Short: "check for external edits, rebuild if any",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			eng, err := a.openEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.close()

			res, err := eng.service.SyncOnFocus(ctx)
			if err != nil {
				return err
			}

			if !res.HasChanges {
				o.Println("up to date")

				return nil
			}

			o.Printf("drift: %d added, %d modified, %d removed\n",
				len(res.Added), len(res.Modified), len(res.Removed))

			if res.Rebuild != nil {
				reportRebuild(o, *res.Rebuild)
			}

			return nil
		},
	}
}

func (a *app) cmdWatch() *Command {
	return &Command{
		Flags: flag.NewFlagSet("watch", flag.ContinueOnError),
		Usage: "watch",
		Short: "watch the tree and sync continuously",
		Long: "Runs until interrupted. Filesystem events are debounced and\n" +
			"each quiet period triggers a drift check; drift rebuilds the\n" +
			"index.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			eng, err := a.openEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.close()

			// Catch up before watching.
			if _, err := eng.service.SyncOnFocus(ctx); err != nil {
				return err
			}

			onChange := func() {
				if _, err := eng.service.SyncOnFocus(context.Background()); err != nil {
					eng.log.Error("sync failed", "err", err)
				}
			}

			debounce := time.Duration(a.cfg.DebounceMS) * time.Millisecond

			w, err := syncer.NewWatcher(a.root, debounce, onChange, eng.log)
			if err != nil {
				return err
			}
			defer func() { _ = w.Close() }()

			o.Println("watching", a.root)

			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			return nil
		},
	}
}

func (a *app) cmdRecover() *Command {
	return &Command{
		Flags: flag.NewFlagSet("recover", flag.ContinueOnError),
		Usage: "recover",
		Short: "synthesize missing descriptors, then rebuild",
		Long: "Walks the tree and writes descriptor files for event folders\n" +
			"without one and markdown sidecars for orphaned media, then\n" +
			"rebuilds the index. Use after restoring a partial backup.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			eng, err := a.openEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.close()

			res, err := eng.service.Recover(ctx)
			if err != nil {
				return err
			}

			reportRebuild(o, res)

			return nil
		},
	}
}

func (a *app) cmdMigrate() *Command {
	flags := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dbPath := flags.String("db", "", "path to the legacy database")

	return &Command{
		Flags: flags,
		Usage: "migrate --db <path>",
		Short: "export a legacy database into the tree",
		Long: "One-time export of a legacy database into markdown files and\n" +
			"canvas JSON under the journal root, followed by a full\n" +
			"reindex. Legacy IDs and timestamps are preserved.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			if *dbPath == "" {
				return fmt.Errorf("migrate requires --db")
			}

			if err := os.MkdirAll(a.root, 0o755); err != nil {
				return fmt.Errorf("create journal root: %w", err)
			}

			eng, err := a.openEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.close()

			res, err := migrate.New(fs.NewReal(), a.root, eng.log).Export(ctx, *dbPath)
			if err != nil {
				return err
			}

			o.Printf("exported %d years, %d events, %d items\n",
				res.Years, res.Events, res.Items)

			for _, issue := range res.Issues {
				o.Warn(issue.String())
			}

			rebuilt, err := eng.service.Rebuild(ctx)
			if err != nil {
				return err
			}

			reportRebuild(o, rebuilt)

			return nil
		},
	}
}

func (a *app) cmdStatus() *Command {
	return &Command{
		Flags: flag.NewFlagSet("status", flag.ContinueOnError),
		Usage: "status",
		Short: "show index contents and bookkeeping",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			eng, err := a.openEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.close()

			events, err := eng.store.CountEvents(ctx)
			if err != nil {
				return err
			}

			items, err := eng.store.CountItems(ctx)
			if err != nil {
				return err
			}

			canvas, err := eng.store.CountCanvasItems(ctx)
			if err != nil {
				return err
			}

			o.Println("root:  ", a.root)
			o.Println("index: ", index.PathFor(a.root))
			o.Printf("events: %d  items: %d  canvas: %d\n", events, items, canvas)

			if cats, err := eng.store.Categories(ctx); err == nil && len(cats) > 0 {
				o.Println("categories:", strings.Join(cats, ", "))
			}

			if last, ok, err := eng.store.MetaGet(ctx, index.MetaLastFullIndex); err == nil && ok {
				o.Println("last full index:", last)
			}

			return nil
		},
	}
}

func (a *app) cmdPrintConfig() *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "show the effective configuration",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			o.Println("root:", a.cfg.Root)
			o.Printf("debounce_ms: %d\n", a.cfg.DebounceMS)
			o.Printf("auto_sync_minutes: %d\n", a.cfg.AutoSyncMinutes)
			o.Printf("verbose: %t\n", a.cfg.Verbose)

			if a.sources.Global != "" {
				o.Println("global config:", a.sources.Global)
			}

			if a.sources.Project != "" {
				o.Println("project config:", a.sources.Project)
			}

			return nil
		},
	}
}
