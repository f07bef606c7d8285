package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/dbchores/pkg/batch"
	"github.com/pseudomuto/dbchores/pkg/connection"
	"github.com/pseudomuto/dbchores/pkg/consts"
	"github.com/pseudomuto/dbchores/pkg/engine"
	"github.com/pseudomuto/dbchores/pkg/facts"
	"github.com/pseudomuto/dbchores/pkg/ledger"
	"github.com/pseudomuto/dbchores/pkg/metrics"
	"github.com/pseudomuto/dbchores/pkg/source"
	"github.com/urfave/cli/v3"
)

// batchOptions are the settings shared by run and glob.
type batchOptions struct {
	Check           bool
	ContinueOnError bool
	History         string
	FactsIn         string
	FactsOut        string
	MetricsFile     string
	Timeout         time.Duration
	Vars            map[string]any
	BaseDir         string
}

// batchFlags returns new instances on every call; flags hold parse state.
func batchFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "check",
			Usage: "dry run: skip mutating statements (autocommit statements still run)",
		},
		&cli.BoolFlag{
			Name:  "continue-on-error",
			Usage: "keep going after a failed query; the command still fails",
		},
		&cli.StringFlag{
			Name:  "history",
			Usage: "the history file",
			Config: cli.StringConfig{
				TrimSpace: true,
			},
		},
		&cli.StringFlag{
			Name:  "metrics-file",
			Usage: "write Prometheus metrics to this file when the batch ends",
			Config: cli.StringConfig{
				TrimSpace: true,
			},
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "default per-query timeout (0 for none)",
		},
	}
}

// executeBatch runs spec and reports the results to w. The returned error is
// the batch failure, if any.
func executeBatch(
	ctx context.Context,
	w io.Writer,
	registry *engine.Registry,
	resolver *connection.Resolver,
	spec *batch.Spec,
	opts batchOptions,
) error {
	history, closeHistory, err := openHistory(opts.History, opts.Check)
	if err != nil {
		return err
	}
	defer closeHistory()

	sidecar := opts.History + consts.FactsSidecarSuffix
	store, err := seedFacts(opts.FactsIn, sidecar)
	if err != nil {
		return err
	}

	var recorder *metrics.Recorder
	if opts.MetricsFile != "" {
		recorder = metrics.New()
	}

	slog.Info("Starting batch",
		"queries", spec.Len(),
		"check", opts.Check,
		"history", opts.History,
	)

	o := batch.New(batch.Config{
		Resolver:        resolver,
		Registry:        registry,
		Loader:          &source.Loader{BaseDir: opts.BaseDir},
		Ledger:          history,
		Facts:           store,
		Check:           opts.Check,
		ContinueOnError: opts.ContinueOnError,
		Timeout:         opts.Timeout,
		Vars:            opts.Vars,
		Logger:          slog.Default(),
		Metrics:         recorder,
	})

	report, runErr := o.Run(ctx, spec)

	// facts whose queries are in the history won't run again, so their values
	// have to outlive this run for a re-run to resume
	if !opts.Check {
		if err := writeFacts(sidecar, o.Facts()); err != nil {
			slog.Error("Failed to write facts", "path", sidecar, "error", err)
		}
	}

	if opts.FactsOut != "" {
		if err := writeFacts(opts.FactsOut, o.Facts()); err != nil {
			slog.Error("Failed to write facts", "path", opts.FactsOut, "error", err)
		}
	}

	if err := recorder.WriteFile(opts.MetricsFile); err != nil {
		slog.Error("Failed to write metrics", "path", opts.MetricsFile, "error", err)
	}

	reportResults(w, report)
	return runErr
}

// openHistory opens and locks the history file. Check mode never records, so
// it only reads the file (which may not exist yet).
func openHistory(path string, check bool) (ledger.Ledger, func(), error) {
	if check {
		entries, err := ledger.ReadFile(path)
		if err != nil && !os.IsNotExist(errors.Cause(err)) {
			return nil, nil, err
		}

		return ledger.NewMemory(entries...), func() {}, nil
	}

	history, err := ledger.Open(path)
	if err != nil {
		return nil, nil, err
	}

	return history, func() {
		if err := history.Close(); err != nil {
			slog.Warn("Failed to close history", "path", path, "error", err)
		}
	}, nil
}

// seedFacts loads the initial fact store: the --facts-in file when given,
// otherwise the facts saved next to the history by a previous run.
func seedFacts(factsIn, sidecar string) (*facts.Store, error) {
	if factsIn != "" {
		return loadFacts(factsIn)
	}

	if _, err := os.Stat(sidecar); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, errors.Wrapf(err, "failed to stat facts file: %s", sidecar)
	}

	slog.Debug("Seeding facts from a previous run", "path", sidecar)
	return loadFacts(sidecar)
}

func loadFacts(path string) (*facts.Store, error) {
	if path == "" {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open facts file: %s", path)
	}
	defer func() { _ = f.Close() }()

	store, err := facts.Load(f)
	return store, errors.Wrapf(err, "failed to load facts from %s", path)
}

func writeFacts(path string, store *facts.Store) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, consts.ModeFile)
	if err != nil {
		return errors.Wrapf(err, "failed to create facts file: %s", path)
	}

	if _, err := store.WriteTo(f); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

// parseVars turns key=value pairs into template vars.
func parseVars(pairs []string) (map[string]any, error) {
	vars := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, errors.Errorf("invalid var %q (expected key=value)", pair)
		}

		vars[k] = v
	}

	return vars, nil
}
