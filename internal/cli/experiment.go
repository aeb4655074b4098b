package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/abacus/internal/domain"
	"github.com/emiliopalmerini/abacus/internal/experiment"
	"github.com/emiliopalmerini/abacus/internal/util"
)

var experimentCmd = &cobra.Command{
	Use:     "experiment",
	Aliases: []string{"exp"},
	Short:   "Manage experiments",
	Long:    `Create, list, start, pause, stop and delete A/B experiments.`,
}

var experimentCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a draft experiment",
	Long: `Create a draft experiment. Traffic is split evenly across --variants
unless an explicit --split is given.

Examples:
  abacus experiment create checkout-button --metric purchase
  abacus experiment create pricing --metric signup --split control=50,cheap=25,premium=25 --min-sample 500`,
	Args: cobra.ExactArgs(1),
	RunE: runExperimentCreate,
}

var experimentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List experiments",
	Args:  cobra.NoArgs,
	RunE:  runExperimentList,
}

var experimentShowCmd = &cobra.Command{
	Use:   "show <experiment>",
	Short: "Show an experiment's configuration",
	Args:  cobra.ExactArgs(1),
	RunE:  runExperimentShow,
}

var experimentEditCmd = &cobra.Command{
	Use:   "edit <experiment>",
	Short: "Edit a draft or paused experiment",
	Long: `Edit configuration fields of a draft or paused experiment. Only the
flags that are given change.

Examples:
  abacus experiment edit pricing --min-sample 800 --threshold 0.99`,
	Args: cobra.ExactArgs(1),
	RunE: runExperimentEdit,
}

var experimentSplitCmd = &cobra.Command{
	Use:   "split <experiment> <split>",
	Short: "Replace the traffic split",
	Long: `Replace the traffic split of a draft or paused experiment. After the
experiment has started only the percentages may change.

Examples:
  abacus experiment split pricing control=40,cheap=30,premium=30`,
	Args: cobra.ExactArgs(2),
	RunE: runExperimentSplit,
}

var experimentDeleteCmd = &cobra.Command{
	Use:   "delete <experiment>",
	Short: "Delete a draft or finished experiment",
	Long:  `Delete an experiment together with its assignments, events and statistics.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runExperimentDelete,
}

type experimentFlags struct {
	name        string
	metric      string
	variants    []string
	split       string
	minSample   int64
	threshold   float64
	duration    int64
	baseline    float64
	mde         float64
	description string
	hypothesis  string
}

// Flags
var (
	createFlags experimentFlags
	editFlags   experimentFlags
	expStatus   string
)

func init() {
	rootCmd.AddCommand(experimentCmd)

	experimentCmd.AddCommand(experimentCreateCmd)
	experimentCmd.AddCommand(experimentListCmd)
	experimentCmd.AddCommand(experimentShowCmd)
	experimentCmd.AddCommand(experimentEditCmd)
	experimentCmd.AddCommand(experimentSplitCmd)
	experimentCmd.AddCommand(experimentDeleteCmd)
	experimentCmd.AddCommand(newTransitionCmd("start", "Start a draft experiment", func(ctx context.Context, id string) (*domain.Experiment, error) {
		return app.Services.Registry.Start(ctx, id)
	}))
	experimentCmd.AddCommand(newTransitionCmd("pause", "Pause a running experiment", func(ctx context.Context, id string) (*domain.Experiment, error) {
		return app.Services.Registry.Pause(ctx, id)
	}))
	experimentCmd.AddCommand(newTransitionCmd("resume", "Resume a paused experiment", func(ctx context.Context, id string) (*domain.Experiment, error) {
		return app.Services.Registry.Resume(ctx, id)
	}))
	experimentCmd.AddCommand(newTransitionCmd("stop", "Stop an experiment without a winner", func(ctx context.Context, id string) (*domain.Experiment, error) {
		return app.Services.Registry.Stop(ctx, id)
	}))

	f := experimentCreateCmd.Flags()
	f.StringVarP(&createFlags.metric, "metric", "m", "", "Event type that counts as a conversion (required)")
	f.StringSliceVar(&createFlags.variants, "variants", []string{"control", "treatment"}, "Variant names for an even split")
	f.StringVar(&createFlags.split, "split", "", "Explicit split, e.g. control=50,treatment=50")
	f.Int64Var(&createFlags.minSample, "min-sample", 100, "Minimum users per variant before a winner can be declared")
	f.Float64Var(&createFlags.threshold, "threshold", domain.DefaultSignificanceThreshold, "Significance threshold (confidence level)")
	f.Int64Var(&createFlags.duration, "duration", 0, "Planned test duration in days")
	f.Float64Var(&createFlags.baseline, "baseline", 0, "Expected control conversion rate, used for sample size planning")
	f.Float64Var(&createFlags.mde, "mde", 0, "Minimum detectable relative effect, used for sample size planning")
	f.StringVarP(&createFlags.description, "description", "d", "", "Description of the experiment")
	f.StringVarP(&createFlags.hypothesis, "hypothesis", "H", "", "Hypothesis to test")
	_ = experimentCreateCmd.MarkFlagRequired("metric")

	e := experimentEditCmd.Flags()
	e.StringVar(&editFlags.name, "name", "", "New name")
	e.StringVarP(&editFlags.metric, "metric", "m", "", "Event type that counts as a conversion")
	e.Int64Var(&editFlags.minSample, "min-sample", 0, "Minimum users per variant")
	e.Float64Var(&editFlags.threshold, "threshold", 0, "Significance threshold (confidence level)")
	e.Int64Var(&editFlags.duration, "duration", 0, "Planned test duration in days")
	e.Float64Var(&editFlags.baseline, "baseline", 0, "Expected control conversion rate")
	e.Float64Var(&editFlags.mde, "mde", 0, "Minimum detectable relative effect")
	e.StringVarP(&editFlags.description, "description", "d", "", "Description of the experiment")
	e.StringVarP(&editFlags.hypothesis, "hypothesis", "H", "", "Hypothesis to test")

	experimentListCmd.Flags().StringVar(&expStatus, "status", "", "Only list experiments in this status")
}

func newTransitionCmd(verb, short string, apply func(context.Context, string) (*domain.Experiment, error)) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <experiment>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			exp, err := app.Services.Registry.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			exp, err = apply(ctx, exp.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Experiment %s is now %s\n", exp.Name, exp.Status)
			return nil
		},
	}
}

func runExperimentCreate(cmd *cobra.Command, args []string) error {
	fl := createFlags
	split := domain.EvenSplit(fl.variants)
	if fl.split != "" {
		var err error
		if split, err = domain.ParseTrafficSplit(fl.split); err != nil {
			return err
		}
	}

	in := experiment.CreateInput{
		Name:                  args[0],
		Description:           optionalString(cmd, "description", fl.description),
		Hypothesis:            optionalString(cmd, "hypothesis", fl.hypothesis),
		SuccessMetric:         fl.metric,
		TrafficSplit:          split,
		MinimumSampleSize:     fl.minSample,
		SignificanceThreshold: fl.threshold,
		TestDurationDays:      fl.duration,
	}
	if cmd.Flags().Changed("baseline") {
		in.BaselineRate = &fl.baseline
	}
	if cmd.Flags().Changed("mde") {
		in.MinimumDetectableEffect = &fl.mde
	}

	exp, err := app.Services.Registry.Create(cmd.Context(), in)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created experiment %s (%s) with split %s\n", exp.Name, exp.ID, exp.TrafficSplit)
	return nil
}

func runExperimentList(cmd *cobra.Command, args []string) error {
	var status *domain.Status
	if expStatus != "" {
		st, err := domain.ParseStatus(expStatus)
		if err != nil {
			return err
		}
		status = &st
	}

	experiments, err := app.Services.Registry.List(cmd.Context(), status)
	if err != nil {
		return fmt.Errorf("failed to list experiments: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(experiments) == 0 {
		fmt.Fprintln(out, "No experiments found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATUS\tMETRIC\tSPLIT\tCREATED")
	for _, e := range experiments {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Name, e.Status, e.SuccessMetric, e.TrafficSplit, util.FormatTime(e.CreatedAt))
	}
	return w.Flush()
}

func runExperimentShow(cmd *cobra.Command, args []string) error {
	exp, err := app.Services.Registry.Resolve(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printExperiment(cmd.OutOrStdout(), exp)
}

func runExperimentEdit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	exp, err := app.Services.Registry.Resolve(ctx, args[0])
	if err != nil {
		return err
	}

	fl := editFlags
	flags := cmd.Flags()
	u := experiment.DetailsUpdate{
		Name:          optionalString(cmd, "name", fl.name),
		Description:   optionalString(cmd, "description", fl.description),
		Hypothesis:    optionalString(cmd, "hypothesis", fl.hypothesis),
		SuccessMetric: optionalString(cmd, "metric", fl.metric),
	}
	if flags.Changed("min-sample") {
		u.MinimumSampleSize = &fl.minSample
	}
	if flags.Changed("threshold") {
		u.SignificanceThreshold = &fl.threshold
	}
	if flags.Changed("duration") {
		u.TestDurationDays = &fl.duration
	}
	if flags.Changed("baseline") {
		u.BaselineRate = &fl.baseline
	}
	if flags.Changed("mde") {
		u.MinimumDetectableEffect = &fl.mde
	}

	exp, err = app.Services.Registry.UpdateDetails(ctx, exp.ID, u)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated experiment %s\n", exp.Name)
	return nil
}

func runExperimentSplit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	split, err := domain.ParseTrafficSplit(args[1])
	if err != nil {
		return err
	}
	exp, err := app.Services.Registry.Resolve(ctx, args[0])
	if err != nil {
		return err
	}
	exp, err = app.Services.Registry.UpdateTrafficSplit(ctx, exp.ID, split)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Traffic split for %s is now %s\n", exp.Name, exp.TrafficSplit)
	return nil
}

func runExperimentDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	exp, err := app.Services.Registry.Resolve(ctx, args[0])
	if err != nil {
		return err
	}
	if err := app.Services.Registry.Delete(ctx, exp.ID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted experiment %s\n", exp.Name)
	return nil
}

func printExperiment(out io.Writer, e *domain.Experiment) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", e.ID)
	fmt.Fprintf(w, "Name:\t%s\n", e.Name)
	fmt.Fprintf(w, "Status:\t%s\n", e.Status)
	if e.Description != nil {
		fmt.Fprintf(w, "Description:\t%s\n", *e.Description)
	}
	if e.Hypothesis != nil {
		fmt.Fprintf(w, "Hypothesis:\t%s\n", *e.Hypothesis)
	}
	fmt.Fprintf(w, "Success metric:\t%s\n", e.SuccessMetric)
	fmt.Fprintf(w, "Traffic split:\t%s\n", e.TrafficSplit)
	fmt.Fprintf(w, "Control:\t%s\n", e.Control())
	fmt.Fprintf(w, "Minimum sample:\t%d per variant\n", e.MinimumSampleSize)
	fmt.Fprintf(w, "Significance:\t%.2f\n", e.SignificanceThreshold)
	fmt.Fprintf(w, "Planned sample:\t%d users\n", experiment.PlannedSampleSize(e))
	if e.TestDurationDays > 0 {
		fmt.Fprintf(w, "Duration:\t%d days\n", e.TestDurationDays)
	}
	if e.BaselineRate != nil {
		fmt.Fprintf(w, "Baseline rate:\t%s\n", util.FormatPercent(*e.BaselineRate))
	}
	if e.MinimumDetectableEffect != nil {
		fmt.Fprintf(w, "Detectable effect:\t%s\n", util.FormatSignedPercent(e.MinimumDetectableEffect))
	}
	if e.WinnerVariant != nil {
		fmt.Fprintf(w, "Winner:\t%s\n", *e.WinnerVariant)
	}
	if e.ConfidenceLevel != nil {
		fmt.Fprintf(w, "Confidence:\t%s\n", util.FormatPercent(*e.ConfidenceLevel))
	}
	fmt.Fprintf(w, "Started:\t%s\n", util.FormatTimePtr(e.StartedAt))
	fmt.Fprintf(w, "Ended:\t%s\n", util.FormatTimePtr(e.EndedAt))
	fmt.Fprintf(w, "Created:\t%s\n", util.FormatTime(e.CreatedAt))
	return w.Flush()
}

// optionalString returns a pointer to value when the flag was given.
func optionalString(cmd *cobra.Command, flag, value string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}
