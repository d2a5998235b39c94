package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cognicore/termset/internal/logging"
	"github.com/cognicore/termset/pkg/termset/internalerr"
	"github.com/cognicore/termset/pkg/termset/snapshot"
	"github.com/cognicore/termset/pkg/termset/termset"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <snapshot.json> [concept-id...]",
		Short: "Print the spellings stored for concepts",
		Long:  "show prints every concept of a snapshot, fewest spellings first, or only the given ids.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := snapshot.OpenFile(args[0])
			if err != nil {
				return fmt.Errorf("%w: %w", internalerr.ErrInvalidInput, err)
			}
			out := cmd.OutOrStdout()
			for _, line := range termset.Describe(idx, args[1:]) {
				fmt.Fprintln(out, line)
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func newGenerateCmd() *cobra.Command {
	var (
		confidence float64
		selected   []string
		outDir     string
		add        string
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "generate <snapshot.json> <concepts.csv|concepts.json>",
		Short: "Build one termset per concept of interest",
		Long: "generate collects, for each concept of interest, the spellings of its ids\n" +
			"scored at least --confidence, prints them by frequency and saves each termset\n" +
			"as \"<concept> termset.json\" in --out-dir.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := getCLIContext(cmd)
			if err != nil {
				return err
			}
			idx, err := snapshot.OpenFile(args[0])
			if err != nil {
				return fmt.Errorf("%w: %w", internalerr.ErrInvalidInput, err)
			}
			concepts, err := termset.LoadConcepts(args[1])
			if err != nil {
				return err
			}

			var filter []string
			if cmd.Flags().Changed("concept") {
				filter = selected
			}

			out := cmd.OutOrStdout()
			for _, pc := range termset.PhraseDict(idx, concepts, filter, confidence) {
				fmt.Fprintf(out, "%s\n", pc.Concept)
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "  term\tcount")
				for _, tc := range termset.Rank(pc.Counts) {
					fmt.Fprintf(tw, "  %s\t%d\n", tc.Term, tc.Count)
				}
				tw.Flush()

				ts := termset.FromCounts(pc)
				ts.Terms = termset.AddTerms(ts.Terms, add)
				if dryRun {
					continue
				}
				path, err := termset.Save(outDir, termset.GeneratedSuffix, ts)
				if err != nil {
					return err
				}
				cc.log.Info("termset saved", logging.String("concept", ts.Concept), logging.Int("terms", len(ts.Terms)), logging.String("path", path))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.Float64Var(&confidence, "confidence", 0.9, "minimum score of a spelling")
	f.StringSliceVar(&selected, "concept", nil, "concepts to include (default: all)")
	f.StringVar(&outDir, "out-dir", "Saved Termsets", "directory for saved termsets")
	f.StringVar(&add, "add", "", "comma-separated terms added to every termset")
	f.BoolVar(&dryRun, "dry-run", false, "print the tables without saving")
	return cmd
}

func newReviewCmd() *cobra.Command {
	var (
		outDir string
		add    string
	)

	cmd := &cobra.Command{
		Use:   "review <saved termset.json>...",
		Short: "Re-save generated termsets after manual additions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := getCLIContext(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, path := range args {
				sets, err := termset.LoadSaved(path)
				if err != nil {
					return err
				}
				for _, ts := range sets {
					ts.Terms = termset.AddTerms(ts.Terms, add)
					saved, err := termset.Save(outDir, termset.ReviewedSuffix, ts)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s: %d terms -> %s\n", ts.Concept, len(ts.Terms), saved)
					cc.log.Debug("termset reviewed", logging.String("concept", ts.Concept), logging.String("path", saved))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out-dir", "Reviewed Termsets", "directory for reviewed termsets")
	cmd.Flags().StringVar(&add, "add", "", "comma-separated terms added to every termset")
	return cmd
}

func newExportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <termset.json>...",
		Short: "Export termsets as a YAML synonym lexicon",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var all []termset.Termset
			for _, path := range args {
				if err := isFileArg(path); err != nil {
					return err
				}
				sets, err := termset.LoadSaved(path)
				if err != nil {
					return err
				}
				all = append(all, sets...)
			}

			if output == "" || output == "-" {
				return termset.ExportLexicon(cmd.OutOrStdout(), all)
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("%w: %w", internalerr.ErrPersistence, err)
			}
			if err := termset.ExportLexicon(f, all); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("%w: %w", internalerr.ErrPersistence, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "lexicon file (default: stdout)")
	return cmd
}
