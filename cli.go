package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/524D/psmcache/internal/config"
	"github.com/524D/psmcache/internal/docerr"
	"github.com/524D/psmcache/internal/fileindex"
	"github.com/524D/psmcache/internal/logger"
	"github.com/524D/psmcache/internal/psm"
	"github.com/524D/psmcache/internal/spectra"
	"github.com/524D/psmcache/internal/store"
	"github.com/524D/psmcache/internal/summary"
	"github.com/524D/psmcache/internal/workflow"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp() *cli.App {
	app := &cli.App{
		Name:    progName,
		Usage:   "Flatten peptide identifications and MS2 peaks into a queryable cache",
		Version: progVersion,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Configuration file (default <workspace>/" + config.FileName + ")"},
			&cli.StringFlag{Name: "log-level", Usage: "Log level: debug|info|warn|error|disabled"},
			&cli.IntFlag{Name: "workers", Aliases: []string{"j"}, Usage: "Raw-data documents parsed concurrently"},
		},
		Commands: []*cli.Command{
			psmsCmd(),
			peaksCmd(),
			summaryCmd(),
			buildCmd(),
			lookupCmd(),
			statusCmd(),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// psmsCmd creates the psms command.
func psmsCmd() *cli.Command {
	return &cli.Command{
		Name:      "psms",
		Usage:     "Print the flat PSM table of an identification document as JSON lines",
		ArgsUsage: "<file.idXML|file.mzid>",
		Action: func(c *cli.Context) error {
			path, err := requireArg(c, "identification document")
			if err != nil {
				return outputError(err)
			}
			cfg, log, err := setup(c, "")
			if err != nil {
				return outputError(err)
			}
			table, err := psm.BuildTable(path, fileindex.New(), psmOptions(cfg, log))
			if err != nil {
				return outputError(err)
			}
			enc := json.NewEncoder(c.App.Writer)
			for i := range table.Records {
				if err := enc.Encode(&table.Records[i]); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// peaksCmd creates the peaks command.
func peaksCmd() *cli.Command {
	return &cli.Command{
		Name:      "peaks",
		Usage:     "Print the MS2 peaks of a directory of mzML files as JSON lines",
		ArgsUsage: "<dir>",
		Action: func(c *cli.Context) error {
			dir, err := requireArg(c, "raw-data directory")
			if err != nil {
				return outputError(err)
			}
			cfg, log, err := setup(c, "")
			if err != nil {
				return outputError(err)
			}
			b := spectra.Builder{
				Ext:     cfg.RawDataExt,
				Workers: cfg.Workers,
				Logger:  logger.Component(log, "spectra"),
			}
			peaks, idx, err := b.Build(dir, nil)
			if err != nil {
				return outputError(err)
			}
			enc := json.NewEncoder(c.App.Writer)
			for _, p := range peaks {
				name, _ := idx.Name(p.FileIndex)
				line := peakLine{
					PeakID:    p.PeakID,
					FileIndex: p.FileIndex,
					Filename:  name,
					ScanID:    p.ScanID,
					Mass:      finite(p.Mass),
					Intensity: finite(p.Intensity),
				}
				if err := enc.Encode(&line); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// peakLine is a peak record with its filename, as printed by the peaks
// command. NaN values are printed as null.
type peakLine struct {
	PeakID    int      `json:"peak_id"`
	FileIndex int      `json:"file_index"`
	Filename  string   `json:"filename"`
	ScanID    int      `json:"scan_id"`
	Mass      *float64 `json:"mass"`
	Intensity *float64 `json:"intensity"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// summaryCmd creates the summary command.
func summaryCmd() *cli.Command {
	return &cli.Command{
		Name:      "summary",
		Usage:     "Summarize the PSM table of an identification document",
		ArgsUsage: "<file.idXML|file.mzid>",
		Action: func(c *cli.Context) error {
			path, err := requireArg(c, "identification document")
			if err != nil {
				return outputError(err)
			}
			cfg, log, err := setup(c, "")
			if err != nil {
				return outputError(err)
			}
			table, err := psm.BuildTable(path, fileindex.New(), psmOptions(cfg, log))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, summary.Table(&table))
		},
	}
}

// buildCmd creates the build command.
func buildCmd() *cli.Command {
	return &cli.Command{
		Name:      "build",
		Usage:     "Rebuild the PSM and peak cache of a workspace",
		ArgsUsage: "<workspace>",
		Action: func(c *cli.Context) error {
			ws, err := requireArg(c, "workspace")
			if err != nil {
				return outputError(err)
			}
			cfg, log, err := setup(c, ws)
			if err != nil {
				return outputError(err)
			}
			st, err := store.Open(workflow.CachePath(cfg, ws))
			if err != nil {
				return outputError(err)
			}
			defer st.Close()

			report, err := workflow.Run(cfg, ws, st, log)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, report)
		},
	}
}

// lookupCmd creates the lookup command.
func lookupCmd() *cli.Command {
	return &cli.Command{
		Name:      "lookup",
		Usage:     "Print a cached PSM together with the peaks of its spectrum",
		ArgsUsage: "<workspace>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "cache-id", Required: true, Usage: "Cached table, the stem of its identification document"},
			&cli.IntFlag{Name: "id-idx", Usage: "Row of the table"},
		},
		Action: func(c *cli.Context) error {
			ws, err := requireArg(c, "workspace")
			if err != nil {
				return outputError(err)
			}
			st, err := openExisting(c, ws)
			if err != nil {
				return outputError(err)
			}
			defer st.Close()

			m, err := workflow.Lookup(st, c.String("cache-id"), c.Int("id-idx"))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, m)
		},
	}
}

// Status is the output of the status command.
type Status struct {
	RunID     string    `json:"run_id"`
	Workspace string    `json:"workspace"`
	CreatedAt time.Time `json:"created_at"`
	CacheIDs  []string  `json:"cache_ids"`
	Files     []string  `json:"files"`
	Peaks     int       `json:"peaks"`
}

// statusCmd creates the status command.
func statusCmd() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Describe the cache of a workspace",
		ArgsUsage: "<workspace>",
		Action: func(c *cli.Context) error {
			ws, err := requireArg(c, "workspace")
			if err != nil {
				return outputError(err)
			}
			st, err := openExisting(c, ws)
			if err != nil {
				return outputError(err)
			}
			defer st.Close()

			run, err := st.LatestRun()
			if errors.Is(err, store.ErrNotFound) {
				return outputError(docerr.NewNotFound(st.Path(), err))
			}
			if err != nil {
				return outputError(err)
			}
			s := Status{RunID: run.ID, Workspace: run.Workspace, CreatedAt: run.CreatedAt}
			if s.CacheIDs, err = st.CacheIDs(); err != nil {
				return outputError(err)
			}
			if s.Files, err = st.Files(); err != nil {
				return outputError(err)
			}
			if s.Peaks, err = st.NumPeaks(); err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, s)
		},
	}
}

// setup loads the configuration, applies the global flags and creates the
// logger. With no --config, <workspace>/psmcache.yaml is used when a
// workspace is given, and the defaults otherwise.
func setup(c *cli.Context, workspace string) (*config.Config, zerolog.Logger, error) {
	path := c.String("config")
	if path == "" && workspace != "" {
		path = filepath.Join(workspace, config.FileName)
	}
	cfg := config.DefaultConfig()
	if path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return nil, zerolog.Nop(), err
		}
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("invalid configuration: %w", err)
	}
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.Pretty(),
		Output: c.App.ErrWriter,
	})
	return cfg, log, nil
}

// openExisting opens the cache of workspace without creating it.
func openExisting(c *cli.Context, workspace string) (*store.Store, error) {
	cfg, _, err := setup(c, workspace)
	if err != nil {
		return nil, err
	}
	path := workflow.CachePath(cfg, workspace)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, docerr.NewNotFound(path, err)
		}
		return nil, err
	}
	return store.Open(path)
}

func psmOptions(cfg *config.Config, log zerolog.Logger) psm.Options {
	return psm.Options{
		Suffixes:        cfg.SourceSuffixes,
		RawDataExt:      cfg.RawDataExt,
		ScoreAccessions: cfg.ScoreAccessions,
		Logger:          logger.Component(log, "psm"),
	}
}

func requireArg(c *cli.Context, what string) (string, error) {
	if c.NArg() < 1 {
		return "", fmt.Errorf("missing %s argument", what)
	}
	return c.Args().First(), nil
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var dErr *docerr.Error
	if errors.As(err, &dErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s\n%v", dErr.Kind, docerr.Guidance(err), err), 1)
	}
	return cli.Exit(err.Error(), 1)
}
