package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/grouperhq/grouper/internal/config"
	"github.com/grouperhq/grouper/internal/db"
	"github.com/grouperhq/grouper/internal/models"
	"github.com/grouperhq/grouper/internal/plan"
	"github.com/spf13/cobra"
)

func newPlanCmd() *cobra.Command {
	var (
		configPath string
		projectID  string
		title      string
		desc       string
		timeframe  string
		groupSize  int
		file       string
		outPath    string
		stub       bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Generate a plan from the command line",
		Long: `Runs the plan generator directly, without the HTTP server or persistence.

Inputs come either from a stored project (--project) or from flags
(--title, --timeframe, --group, --file). Useful for prompt iteration and
for verifying backend connectivity before deploying.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, planFlags{
				configPath: configPath,
				projectID:  projectID,
				title:      title,
				desc:       desc,
				timeframe:  timeframe,
				groupSize:  groupSize,
				file:       file,
				outPath:    outPath,
				stub:       stub,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "grouper.yaml", "path to Grouper config file")
	cmd.Flags().StringVar(&projectID, "project", "", "load inputs from a stored project id")
	cmd.Flags().StringVar(&title, "title", "", "assignment title")
	cmd.Flags().StringVar(&desc, "description", "", "assignment description")
	cmd.Flags().StringVar(&timeframe, "timeframe", "oneWeek", "timeframe: twoDay, oneWeek, or long")
	cmd.Flags().IntVar(&groupSize, "group", 1, "group size (1-12)")
	cmd.Flags().StringVar(&file, "file", "", "read assignment details from file")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the plan JSON to file")
	cmd.Flags().BoolVar(&stub, "stub", false, "use the deterministic stub instead of the backend")
	return cmd
}

type planFlags struct {
	configPath string
	projectID  string
	title      string
	desc       string
	timeframe  string
	groupSize  int
	file       string
	outPath    string
	stub       bool
}

func runPlan(cmd *cobra.Command, flags planFlags) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	in, err := resolvePlanInput(cfg, flags)
	if err != nil {
		return err
	}

	cfgForGen := *cfg
	if flags.stub {
		cfgForGen.OpenAI.UseStub = true
	}
	generator, err := buildGenerator(&cfgForGen)
	if err != nil {
		return err
	}

	if generator.Stub() {
		fmt.Fprintln(out, "Generating (stub mode)...")
	} else {
		fmt.Fprintf(out, "Generating with %s...\n", cfg.OpenAI.Model)
	}

	start := time.Now()
	p, err := generator.Generate(context.Background(), in)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	fmt.Fprintf(out, "Plan generated in %s\n\n", time.Since(start).Round(time.Millisecond))

	printPlanSummary(cmd, p)

	if flags.outPath != "" {
		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal plan: %w", err)
		}
		if err := os.WriteFile(flags.outPath, data, 0644); err != nil {
			return fmt.Errorf("write %s: %w", flags.outPath, err)
		}
		fmt.Fprintf(out, "\nPlan written to %s\n", flags.outPath)
	}
	return nil
}

// resolvePlanInput builds the generator input from a stored project or from
// flags.
func resolvePlanInput(cfg *config.Config, flags planFlags) (plan.Input, error) {
	if flags.projectID != "" {
		gormDB, err := db.Connect(cfg.Database)
		if err != nil {
			return plan.Input{}, err
		}
		var proj models.Project
		if err := gormDB.First(&proj, "id = ?", flags.projectID).Error; err != nil {
			return plan.Input{}, fmt.Errorf("load project %s: %w", flags.projectID, err)
		}
		return plan.Input{
			Title:             proj.Name,
			Description:       proj.Description,
			Timeframe:         plan.Timeframe(proj.Timeframe),
			AssignmentDetails: proj.AssignmentDetails,
			GroupSize:         proj.GroupSize,
			TraceID:           uuid.NewString(),
		}, nil
	}

	if flags.title == "" {
		return plan.Input{}, fmt.Errorf("either --project or --title is required")
	}
	tf := plan.Timeframe(flags.timeframe)
	if !tf.Valid() {
		return plan.Input{}, fmt.Errorf("invalid timeframe %q", flags.timeframe)
	}

	details := ""
	if flags.file != "" {
		data, err := os.ReadFile(flags.file)
		if err != nil {
			return plan.Input{}, fmt.Errorf("read %s: %w", flags.file, err)
		}
		details = string(data)
	}

	return plan.Input{
		Title:             flags.title,
		Description:       flags.desc,
		Timeframe:         tf,
		AssignmentDetails: details,
		GroupSize:         flags.groupSize,
		TraceID:           uuid.NewString(),
	}, nil
}

// printPlanSummary renders bundles, tasks, and per-bundle effort totals.
func printPlanSummary(cmd *cobra.Command, p *plan.Plan) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Timeframe: %s\n", p.Timeframe)
	fmt.Fprintf(out, "Deliverables (%d):\n", len(p.Deliverables))
	for _, d := range p.Deliverables {
		fmt.Fprintf(out, "  - %s\n", d.Title)
	}

	fmt.Fprintf(out, "Bundles (%d):\n", len(p.Bundles))
	for _, b := range p.Bundles {
		fmt.Fprintf(out, "  %s: %s (%d tasks, %d effort points)\n",
			b.Label, b.BundleTitle, len(b.Tasks), b.EffortTotal())
		for _, t := range b.Tasks {
			fmt.Fprintf(out, "    [%s/%s] %s\n", t.Category, t.Size, t.Title)
		}
	}

	if len(p.Assumptions) > 0 {
		fmt.Fprintf(out, "Assumptions (%d):\n", len(p.Assumptions))
		for _, a := range p.Assumptions {
			fmt.Fprintf(out, "  - %s\n", a)
		}
	}
}
