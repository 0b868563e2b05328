package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/claimcheck/internal/claim"
	"github.com/kalambet/claimcheck/internal/config"
	"github.com/kalambet/claimcheck/internal/ingest"
	"github.com/kalambet/claimcheck/internal/pipeline"
	"github.com/kalambet/claimcheck/internal/synth"
)

// --- index ---

var indexCmd = &cobra.Command{
	Use:   "index <path>...",
	Short: "Index policy documents (PDF, text or markdown)",
	Long: `Chunk, label and embed policy documents into the local index.
Unchanged files are skipped; changed files replace their previous passages.

Examples:
  claimcheck index ./policies
  claimcheck index --namespace returns ./returns-policy.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level)

		namespace, _ := cmd.Flags().GetString("namespace")
		if namespace == "" {
			namespace = cfg.Index.Namespace
		}

		ctx := cmd.Context()
		be, err := openBackend(ctx, cfg)
		if err != nil {
			return err
		}
		defer be.Close()

		ix := ingest.NewIndexer(be.store, be.embedder, be.index, namespace)
		if n, _ := cmd.Flags().GetInt("chunk-size"); n > 0 {
			ix.ChunkRunes = n
		}

		var indexed, skipped int
		for _, path := range args {
			printStep("Indexing %s", path)
			results, err := ix.IndexPath(ctx, path)
			for _, r := range results {
				if r.Skipped {
					skipped++
					continue
				}
				indexed++
				printSuccess("%s: %d passages", r.Path, r.Chunks)
			}
			if err != nil {
				return err
			}
		}

		printSuccess("Indexed %d file(s), %d unchanged, namespace %q", indexed, skipped, namespace)
		return nil
	},
}

func init() {
	indexCmd.Flags().String("namespace", "", "index namespace (default from config)")
	indexCmd.Flags().Int("chunk-size", 0, "chunk size in characters")
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about claims policy",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var ans pipeline.Answer
		if err := client.call(cmd.Context(), "/api/chat", map[string]string{"query": strings.Join(args, " ")}, &ans); err != nil {
			return err
		}
		printAnswer(cmd.OutOrStdout(), ans)
		return nil
	},
}

func printAnswer(w io.Writer, ans pipeline.Answer) {
	fmt.Fprintln(w, ans.Answer)
	if len(ans.Sources) > 0 {
		fmt.Fprintf(w, "\n%s\n", colorize(colorBold, "Sources:"))
		for _, s := range ans.Sources {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}
	if ans.ReducedConfidence {
		fmt.Fprintln(w, colorize(colorYellow, "\n(reduced confidence: retrieval stopped at its step limit)"))
	}
}

// --- evaluate ---

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <claim.json>",
	Short: "Evaluate an agent's claim decision against policy",
	Long: `Evaluate a store agent's decision on a claim. The claim is read as JSON
from the given file, or from stdin when the file is "-".

Examples:
  claimcheck evaluate claim.json
  claimcheck evaluate --depth deep claim.json
  cat claim.json | claimcheck evaluate -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		depth, _ := cmd.Flags().GetString("depth")
		if _, err := pipeline.ParseDepth(depth); err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		rec, err := readClaim(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var report synth.Report
		if err := client.call(cmd.Context(), "/api/evaluate?depth="+url.QueryEscape(depth), rec, &report); err != nil {
			return err
		}
		if asJSON {
			return writeIndented(cmd.OutOrStdout(), report)
		}
		printReport(cmd.OutOrStdout(), report)
		return nil
	},
}

func init() {
	evaluateCmd.Flags().String("depth", string(pipeline.Fast), "evaluation depth: fast or deep")
	evaluateCmd.Flags().Bool("json", false, "print the raw report as JSON")
}

func readClaim(stdin io.Reader, path string) (claim.Record, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return claim.Record{}, fmt.Errorf("reading claim: %w", err)
	}

	var rec claim.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return claim.Record{}, fmt.Errorf("parsing claim JSON: %w", err)
	}
	return rec, nil
}

func printReport(w io.Writer, r synth.Report) {
	fmt.Fprintf(w, "%s %s\n\n", colorize(colorBold, "Strategy:"), r.Strategy)

	for _, e := range r.Criteria.Entries() {
		fmt.Fprintf(w, "%s\n", colorize(colorCyan, string(e.Name)))
		b, err := json.MarshalIndent(e.Evaluation, "  ", "  ")
		if err != nil {
			fmt.Fprintf(w, "  %v\n", err)
			continue
		}
		fmt.Fprintf(w, "  %s\n", b)
	}

	verdict := colorize(colorRed, "NOT ELIGIBLE")
	if r.FinalEligibility.IsEligible {
		verdict = colorize(colorGreen, "ELIGIBLE")
	}
	fmt.Fprintf(w, "\n%s %s\n", colorize(colorBold, "Final:"), verdict)
	fmt.Fprintf(w, "  %s\n", r.FinalEligibility.Justification)
	fmt.Fprintf(w, "\n%s\n  %s\n", colorize(colorBold, "Recommendation:"), r.FinalRecommendation)

	if len(r.Sources) > 0 {
		fmt.Fprintf(w, "\n%s\n", colorize(colorBold, "Sources:"))
		for _, s := range r.Sources {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}
	for _, n := range r.Notes {
		fmt.Fprintln(w, colorize(colorYellow, "⚠ "+n))
	}
}

// --- analyze ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze <claim.json>",
	Short: "Analyze a claim: tone, policy guidance and next steps",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := readClaim(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var analysis pipeline.ClaimAnalysis
		if err := client.call(cmd.Context(), "/api/analyze-claim", rec, &analysis); err != nil {
			return err
		}
		return writeIndented(cmd.OutOrStdout(), analysis)
	},
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			line := fmt.Sprintf("  %s = %s", colorize(colorBold, k.Key), k.Value)
			if k.FromEnv {
				line += colorize(colorYellow, " (from "+k.EnvVar+")")
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}

		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
