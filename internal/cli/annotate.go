package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/cognicore/termset/internal/config"
	"github.com/cognicore/termset/internal/linkclient"
	"github.com/cognicore/termset/internal/logging"
	"github.com/cognicore/termset/internal/metrics"
	"github.com/cognicore/termset/pkg/termset/accumulate"
	"github.com/cognicore/termset/pkg/termset/annotate"
	"github.com/cognicore/termset/pkg/termset/annotate/dictionary"
	"github.com/cognicore/termset/pkg/termset/document"
	"github.com/cognicore/termset/pkg/termset/internalerr"
	"github.com/cognicore/termset/pkg/termset/snapshot"
	"github.com/cognicore/termset/pkg/termset/snapshot/objectstore"
	"github.com/cognicore/termset/pkg/termset/snapshot/sqlite"
	"github.com/cognicore/termset/pkg/termset/stoplist"
)

func newAnnotateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "annotate <corpus.csv|corpus.jsonl> <output.json>",
		Short: "Annotate a corpus and accumulate concept spellings",
		Long: "annotate links every document of the corpus, merges the spellings of each\n" +
			"concept into one index, and writes it to the output path every\n" +
			"--checkpoint-interval documents and once more at the end.",
		Args: cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := getCLIContext(cmd)
			if err != nil {
				return err
			}
			if err := applyAnnotateFlags(cmd, cc.cfg, args); err != nil {
				return err
			}
			if err := cc.cfg.ValidateRun(); err != nil {
				return err
			}
			return runAnnotate(cmd, cc)
		},
	}

	f := cmd.Flags()
	f.String("linker", "", "linker kind: dictionary or remote")
	f.String("dictionary", "", "dictionary file (YAML, or UMLS MRCONSO.RRF)")
	f.StringSlice("sources", nil, "MRCONSO source vocabularies to keep")
	f.String("base-url", "", "linking service URL for the remote linker")
	f.String("ontology", "", "ontology the linker resolves against (umls, mesh, rxnorm, go, hpo)")
	f.Float64("threshold", 0, "minimum linker score to keep a span")
	f.Int("checkpoint-interval", 0, "documents between snapshots; negative writes only the final one")
	f.Int("max-docs", 0, "stop after this many documents")
	f.Int("workers", 0, "documents annotated concurrently")
	f.String("encoding", "", "corpus charset (utf-8, latin1, windows-1252, ...)")
	f.String("text-column", "", "CSV column holding the note text")
	f.String("text-field", "", "JSONL field holding the note text")
	f.Bool("strip-html", false, "remove HTML markup from notes")
	f.String("compression", "", "snapshot compression: none, gzip, zstd")
	f.Bool("atomic", true, "replace the output by renaming a temporary file; --atomic=false rewrites it in place")
	f.Bool("progress", false, "write a <output>.progress.json sidecar")
	f.String("sqlite", "", "also store checkpoints in this SQLite database")
	f.String("stoplist", "", "YAML stoplist replacing the default leading tokens")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address during the run")
	f.String("run-id", "", "run id stamped on checkpoints (default: a new ULID)")
	return cmd
}

func applyAnnotateFlags(cmd *cobra.Command, cfg *config.Config, args []string) error {
	if len(args) > 0 {
		cfg.Input.Path = args[0]
	}
	if len(args) > 1 {
		cfg.Output.Path = args[1]
	}

	f := cmd.Flags()
	var err error
	set := func(name string, fn func() error) {
		if err == nil && f.Changed(name) {
			err = fn()
		}
	}
	str := func(name string, dst *string) { set(name, func() (e error) { *dst, e = f.GetString(name); return }) }

	str("linker", &cfg.Linker.Kind)
	str("dictionary", &cfg.Linker.Dictionary)
	str("base-url", &cfg.Linker.BaseURL)
	str("ontology", &cfg.Linker.Ontology)
	str("encoding", &cfg.Input.Encoding)
	str("text-column", &cfg.Input.TextColumn)
	str("text-field", &cfg.Input.TextField)
	str("sqlite", &cfg.Output.SQLite)
	str("stoplist", &cfg.Stoplist.Path)
	str("metrics-addr", &cfg.Metrics.Addr)
	set("sources", func() (e error) { cfg.Linker.Sources, e = f.GetStringSlice("sources"); return })
	set("threshold", func() (e error) { cfg.Threshold, e = f.GetFloat64("threshold"); return })
	set("checkpoint-interval", func() (e error) { cfg.CheckpointInterval, e = f.GetInt("checkpoint-interval"); return })
	set("max-docs", func() (e error) { cfg.MaxDocs, e = f.GetInt("max-docs"); return })
	set("workers", func() (e error) { cfg.Workers, e = f.GetInt("workers"); return })
	set("strip-html", func() (e error) { cfg.Input.StripHTML, e = f.GetBool("strip-html"); return })
	set("atomic", func() (e error) { cfg.Output.Atomic, e = f.GetBool("atomic"); return })
	set("progress", func() (e error) { cfg.Output.Progress, e = f.GetBool("progress"); return })
	set("compression", func() error {
		c, e := f.GetString("compression")
		cfg.Output.Compression = snapshot.Compression(c)
		return e
	})
	return err
}

func runAnnotate(cmd *cobra.Command, cc *cliContext) error {
	ctx := cmd.Context()
	cfg := cc.cfg
	log := cc.log.Named("annotate")

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Addr != "" {
		stop := serveMetrics(cfg.Metrics.Addr, reg, log)
		defer stop()
	}

	linker, err := buildLinker(ctx, cfg)
	if err != nil {
		return err
	}
	adapter, err := annotate.New(linker, annotate.Options{
		Threshold: cfg.Threshold,
		OnDrop:    func(annotate.Candidate) { m.SpanOutcome(metrics.OutcomeThreshold) },
	})
	if err != nil {
		return err
	}

	stops, err := buildStoplist(cfg.Stoplist)
	if err != nil {
		return err
	}

	sink, closeSinks, err := buildSinks(ctx, cfg.Output)
	if err != nil {
		return err
	}
	defer closeSinks()

	docs, err := document.Load(cfg.Input.Path, cfg.Input.Options())
	if err != nil {
		return err
	}
	log.Info("corpus loaded", logging.String("path", cfg.Input.Path), logging.Int("documents", len(docs)))

	runID, _ := cmd.Flags().GetString("run-id")
	acc := accumulate.New(adapter, accumulate.Options{
		Stoplist:           stops,
		CheckpointInterval: cfg.CheckpointInterval,
		MaxDocs:            cfg.MaxDocs,
		Sink:               sink,
		Workers:            cfg.Workers,
		RunID:              runID,
		Logger:             cc.log,
		Metrics:            m,
	})

	idx, err := acc.Run(ctx, document.NewSliceSource(docs))
	if err != nil {
		return err
	}

	st := acc.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d documents, %d concepts, %d variants written to %s\n",
		acc.RunID(), st.Documents, idx.Len(), st.Variants, cfg.Output.Path)
	return nil
}

func buildLinker(ctx context.Context, cfg *config.Config) (annotate.Linker, error) {
	switch cfg.Linker.Kind {
	case config.LinkerRemote:
		return linkclient.Dial(ctx, linkclient.Config{
			BaseURL:   cfg.Linker.BaseURL,
			Ontology:  cfg.Linker.Ontology,
			APIKey:    cfg.Linker.APIKey,
			Timeout:   cfg.Linker.Timeout,
			RateLimit: cfg.Linker.RateLimit,
		})
	default:
		return dictionary.Open(cfg.Linker.Dictionary, cfg.Linker.RRFOptions())
	}
}

func buildStoplist(cfg config.StoplistConfig) (*stoplist.Manager, error) {
	mgr := stoplist.Default()
	if cfg.Path != "" {
		loaded, err := stoplist.Load(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", internalerr.ErrConfiguration, err)
		}
		mgr = loaded
	}
	for _, t := range cfg.Terms {
		mgr.Add(t)
	}
	return mgr, nil
}

// buildSinks returns the snapshot file sink plus any configured database
// and bucket sinks, and a func releasing them.
func buildSinks(ctx context.Context, out config.OutputConfig) (accumulate.Sink, func(), error) {
	sinks := snapshot.MultiSink{&snapshot.FileSink{
		Path:        out.Path,
		Atomic:      out.Atomic,
		Compression: out.Compression,
		Progress:    out.Progress,
	}}
	closers := []func(){}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if out.SQLite != "" {
		db, err := sqlite.Open(ctx, out.SQLite)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { db.Close() })
		sinks = append(sinks, db)
	}
	if out.ObjectStore.Endpoint != "" {
		bucket, err := objectstore.New(out.ObjectStore)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, bucket)
	}

	if len(sinks) == 1 {
		return sinks[0], closeAll, nil
	}
	return sinks, closeAll, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, log logging.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", logging.String("addr", addr), logging.Err(err))
		}
	}()
	log.Info("serving metrics", logging.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
