package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	simpleworkflow "github.com/tendant/simple-workflow"

	"github.com/tendant/simple-animation-pipeline/internal/config"
	"github.com/tendant/simple-animation-pipeline/internal/executors"
	"github.com/tendant/simple-animation-pipeline/internal/logger"
	"github.com/tendant/simple-animation-pipeline/internal/setup"
	"github.com/tendant/simple-animation-pipeline/internal/workflows"
	"github.com/tendant/simple-animation-pipeline/pkg/pipeline"
)

var (
	animateSrc  textSource
	conceptsSrc textSource
	entitiesSrc textSource
	exploreSrc  textSource

	seed        int64
	parallelism int
	jsonOutput  bool
	withPrompts bool

	payload     string
	payloadFile string
)

var animateCmd = &cobra.Command{
	Use:   "animate",
	Short: "Run the full pipeline and print the report",
	RunE:  runAnimate,
}

var conceptsCmd = &cobra.Command{
	Use:   "concepts",
	Short: "Preview the concepts and seeds a run would use",
	RunE:  runConcepts,
}

var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Generate educational text about an interest",
	RunE:  runExplore,
}

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "List concrete entities in a text worth visualizing",
	RunE:  runEntities,
}

var execCmd = &cobra.Command{
	Use:   "exec",
	Short: "Execute a simple-workflow run payload in process",
	Long: `Execute a simple-workflow run payload in process.

The payload is the JSON a simple-workflow run carries:
  {"text": "...", "job": "animation|concepts", "base_seed": 42, "parallelism": 3}`,
	RunE: runExec,
}

func init() {
	animateSrc.bind(animateCmd)
	animateCmd.Flags().Int64Var(&seed, "seed", -1, "Base seed (default BASE_SEED or 42)")
	animateCmd.Flags().IntVar(&parallelism, "parallelism", 0, "Concurrent entity jobs (default MAX_PARALLEL_TASKS or 3)")
	animateCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the report as JSON")

	conceptsSrc.bind(conceptsCmd)
	conceptsCmd.Flags().Int64Var(&seed, "seed", -1, "Base seed (default BASE_SEED or 42)")
	conceptsCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print as JSON")
	conceptsCmd.Flags().BoolVar(&withPrompts, "prompts", false, "Also enrich each concept into its image prompt")

	exploreCmd.Flags().StringVar(&exploreSrc.interest, "interest", "", "Topic to write about")
	exploreCmd.Flags().IntVar(&exploreSrc.minutes, "minutes", 2, "Reading time in minutes")
	exploreCmd.Flags().StringVar(&exploreSrc.focus, "focus", "", "Aspect of the interest to focus on (\"no\" to skip)")
	exploreCmd.MarkFlagRequired("interest")

	entitiesSrc.bind(entitiesCmd)
	entitiesCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print as JSON")

	execCmd.Flags().StringVar(&payload, "payload", "", "Run payload JSON")
	execCmd.Flags().StringVar(&payloadFile, "payload-file", "", "Read the run payload from a file")
}

// signalContext is cancelled on SIGINT/SIGTERM; entities not yet started are reported as cancelled
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newPipeline(ctx context.Context) (*config.Config, *setup.Pipeline, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	p, err := setup.New(ctx, cfg, logger.Logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, p, nil
}

func baseSeed(cfg *config.Config) int64 {
	if seed >= 0 {
		return seed
	}
	return cfg.BaseSeed
}

func runAnimate(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, p, err := newPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	text, err := animateSrc.resolve(ctx, p.Explorer)
	if err != nil {
		return err
	}

	report := p.Animation.Run(ctx, text, baseSeed(cfg), parallelism)
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), report)
	}
	printReport(cmd.OutOrStdout(), report)
	if report.Aborted {
		return errors.New(report.AbortReason)
	}
	return nil
}

func runConcepts(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, p, err := newPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	text, err := conceptsSrc.resolve(ctx, p.Explorer)
	if err != nil {
		return err
	}

	s := baseSeed(cfg)
	runID := uuid.New().String()
	result, err := p.Concepts.Execute(&workflows.WorkflowContext{
		Ctx:     ctx,
		Request: pipeline.ProcessRequest{Text: text, Job: pipeline.JobConcepts, BaseSeed: &s},
		RunID:   runID,
	})
	if err != nil {
		return err
	}
	if !result.Success {
		return errors.New(result.Error)
	}

	resp := pipeline.ConceptsResponse{RunID: runID}
	resp.Concepts, _ = result.Outputs["concepts"].([]string)
	resp.Seeds, _ = result.Outputs["seeds"].([]int64)
	if withPrompts {
		resp.Prompts = p.Enricher.EnrichAll(ctx, resp.Concepts)
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	printConcepts(cmd.OutOrStdout(), resp)
	return nil
}

func printConcepts(w io.Writer, resp pipeline.ConceptsResponse) {
	for i, c := range resp.Concepts {
		fmt.Fprintf(w, "%d. %s (seed %d)\n", i+1, c, resp.Seeds[i])
		if prompt, ok := resp.Prompts[c]; ok {
			fmt.Fprintf(w, "   %s\n", prompt)
		}
	}
}

func runExplore(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	_, p, err := newPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	text, err := exploreSrc.resolve(ctx, p.Explorer)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

func runEntities(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	_, p, err := newPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	text, err := entitiesSrc.resolve(ctx, p.Explorer)
	if err != nil {
		return err
	}
	interest := entitiesSrc.interest
	if interest == "" {
		interest = "the text"
	}

	entities, err := p.Explorer.PotentialEntities(ctx, text, interest)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), entities)
	}
	for _, e := range entities {
		fmt.Fprintf(cmd.OutOrStdout(), "- %s: %s\n  %s\n", e.Name, e.Description, e.Relevance)
	}
	return nil
}

func runExec(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	body := []byte(payload)
	if payloadFile != "" {
		data, err := os.ReadFile(payloadFile)
		if err != nil {
			return errors.Wrap(err, "read payload file")
		}
		body = data
	}
	if len(body) == 0 {
		return errors.New("one of --payload or --payload-file is required")
	}

	_, p, err := newPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	runner := workflows.NewWorkflowRunner(nil)
	p.Register(runner)

	out, err := executors.NewPipelineExecutor(runner, logger.Logger).Execute(ctx, &simpleworkflow.WorkflowRun{Payload: body})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReport(w io.Writer, report *pipeline.Report) {
	if report.Aborted {
		fmt.Fprintf(w, "Run aborted: %s\n", report.AbortReason)
		return
	}

	for _, r := range report.Results {
		if r.IsSuccess() {
			fmt.Fprintf(w, "✓ %s (seed %d)\n    image:     %s\n    animation: %s\n", r.Concept, r.Seed, r.ImageRef, r.AnimationRef)
		} else {
			fmt.Fprintf(w, "✗ %s (seed %d) failed while %s: %s\n", r.Concept, r.Seed, r.Stage, r.Error)
		}
	}

	succeeded, failed := report.Counts()
	fmt.Fprintf(w, "\n%d succeeded, %d failed", succeeded, failed)
	if report.Cancelled {
		fmt.Fprint(w, " (cancelled)")
	}
	fmt.Fprintln(w)
}
