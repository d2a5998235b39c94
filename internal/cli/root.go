// Package cli wires the termset commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cognicore/termset/internal/config"
	"github.com/cognicore/termset/internal/logging"
	"github.com/cognicore/termset/pkg/termset/internalerr"
)

// Version is injected at build time.
var Version = "dev"

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

type cliContextKey struct{}

// cliContext carries the loaded config and logger to subcommands.
type cliContext struct {
	cfg *config.Config
	log logging.Logger
}

// NewRootCommand builds the termset command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "termset",
		Short: "Build termsets from annotated clinical notes",
		Long: "termset annotates a corpus of clinical notes with an entity linker, accumulates\n" +
			"every spelling seen for each concept, and turns the result into reviewed termsets.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if cc, ok := cmd.Context().Value(cliContextKey{}).(*cliContext); ok {
				_ = cc.log.Sync()
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "config file (YAML); TERMSET_* variables override it")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&opts.logFormat, "log-format", "", "log format (console, json)")

	cmd.AddCommand(
		newAnnotateCmd(),
		newShowCmd(),
		newGenerateCmd(),
		newReviewCmd(),
		newExportCmd(),
	)
	return cmd
}

func persistentPreRun(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("%w: %w", internalerr.ErrConfiguration, err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, &cliContext{cfg: cfg, log: log}))
	return nil
}

func getCLIContext(cmd *cobra.Command) (*cliContext, error) {
	cc, ok := cmd.Context().Value(cliContextKey{}).(*cliContext)
	if !ok {
		return nil, errors.New("cli: context not initialized")
	}
	return cc, nil
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitCode(err)
	}
	return 0
}

// exitCode maps error classes to distinct process exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return 130
	case errors.Is(err, internalerr.ErrConfiguration):
		return 2
	case errors.Is(err, internalerr.ErrEncoding), errors.Is(err, internalerr.ErrInvalidInput):
		return 3
	case errors.Is(err, internalerr.ErrAnnotation):
		return 4
	case errors.Is(err, internalerr.ErrPersistence):
		return 5
	default:
		return 1
	}
}

func isFileArg(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", internalerr.ErrConfiguration, err)
	}
	if st.IsDir() {
		return fmt.Errorf("%w: %s is a directory", internalerr.ErrConfiguration, path)
	}
	return nil
}
