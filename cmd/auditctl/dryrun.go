package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xela07ax/novel-moderation/internal/classifier"
	"github.com/xela07ax/novel-moderation/internal/connectors"
	"github.com/xela07ax/novel-moderation/internal/domain"
	"github.com/xela07ax/novel-moderation/internal/engine"
)

var (
	dryFile     string
	dryKind     string
	dryTitle    string
	dryBook     string
	dryProvider string
)

var dryRunCmd = &cobra.Command{
	Use:   "dry-run",
	Short: "Segment and classify a local text file without touching storage or the bus",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := domain.ParseEntityKind(dryKind)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(dryFile)
		if err != nil {
			return err
		}

		ccfg := cfg.Classifier
		if dryProvider != "" {
			ccfg.Provider = dryProvider
		}
		model, err := connectors.NewModel(cmd.Context(), ccfg)
		if err != nil {
			return err
		}
		gateway := classifier.NewGateway(connectors.Protect(model, ccfg, nil), ccfg.RefusalMarkers, nil, logger)

		orch := engine.NewOrchestrator(engine.OrchestratorConfig{
			MaxSegmentLength:    cfg.Moderation.MaxSegmentLength,
			BoundaryWindow:      cfg.Moderation.BoundaryWindow,
			ConfidenceThreshold: cfg.Moderation.ConfidenceThreshold,
			CatalogReasonLimit:  cfg.Moderation.CatalogReasonLimit,
			MergedReasonLimit:   cfg.Moderation.MergedReasonLimit,
		}, nil, nil, nil, gateway, nil, nil, logger)

		fields := domain.EntityFields{Kind: kind, Title: dryTitle, BookTitle: dryBook, ChapterSequence: 1}
		if kind == domain.KindChapter {
			fields.Content = string(data)
		} else {
			fields.Description = string(data)
		}

		p, err := orch.Preview(cmd.Context(), fields)
		if err != nil {
			return err
		}
		printPreview(cmd, p)
		return nil
	},
}

func printPreview(cmd *cobra.Command, p engine.Preview) {
	out := cmd.OutOrStdout()
	for _, s := range p.Segments {
		conf := "n/a"
		if s.Confidence != nil {
			conf = fmt.Sprintf("%.2f", *s.Confidence)
		}
		fmt.Fprintf(out, "segment %d/%d: %-8s confidence=%s reason=%s\n",
			s.Ordinal, len(p.Segments), s.Status, conf, s.Reason)
	}
	fmt.Fprintln(out, strings.Repeat("-", 40))
	fmt.Fprintf(out, "merged:  %s confidence=%.2f\n", p.Verdict.Status, p.Verdict.Confidence)
	fmt.Fprintf(out, "reason:  %s\n", p.Verdict.Reason)
	fmt.Fprintf(out, "route:   %s\n", p.Route)
}

func init() {
	dryRunCmd.Flags().StringVarP(&dryFile, "file", "f", "", "Text file to classify")
	dryRunCmd.Flags().StringVar(&dryKind, "kind", string(domain.KindChapter), "book or chapter")
	dryRunCmd.Flags().StringVar(&dryTitle, "title", "Untitled", "Entity title used in the prompt")
	dryRunCmd.Flags().StringVar(&dryBook, "book", "", "Book title (chapters only)")
	dryRunCmd.Flags().StringVar(&dryProvider, "provider", "", "Override classifier.provider (genai, mock)")
	dryRunCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(dryRunCmd)
}
