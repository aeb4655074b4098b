package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/abacus/internal/domain"
	"github.com/emiliopalmerini/abacus/internal/stats"
	"github.com/emiliopalmerini/abacus/internal/util"
)

var statsCmd = &cobra.Command{
	Use:   "stats <experiment>",
	Short: "Compute and show experiment statistics",
	Long: `Recompute the statistics of an experiment from its assignments and
events, store the snapshot and print it. With --latest the stored snapshot is
printed without recomputing.

Examples:
  abacus stats checkout-button
  abacus stats checkout-button --latest`,
	Args: cobra.ExactArgs(1),
	RunE: runStats,
}

var decideCmd = &cobra.Command{
	Use:   "decide <experiment>",
	Short: "Recommend whether to stop or continue",
	Long: `Evaluate the decision policy: declare a winner, stop early for efficacy
or futility, or keep collecting data. With --conclude a detected winner is
recorded and the experiment completed.`,
	Args: cobra.ExactArgs(1),
	RunE: runDecide,
}

var rebalanceCmd = &cobra.Command{
	Use:   "rebalance <experiment>",
	Short: "Propose a traffic split favouring better arms",
	Long: `Propose a split proportional to each arm's conversion rate, keeping
every arm between 10% and 90%. With --apply the split is written; existing
assignments never move.`,
	Args: cobra.ExactArgs(1),
	RunE: runRebalance,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compute the sample size for a planned experiment",
	Long: `Compute the users needed per arm to detect a relative change of --mde
over a --baseline conversion rate.

Examples:
  abacus plan --baseline 0.1 --mde 0.2
  abacus plan --baseline 0.05 --mde 0.1 --arms 3 --adjustment bonferroni --power 0.9`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

// Flags
var (
	statsLatest    bool
	decideConclude bool
	rebalanceApply bool

	planBaseline   float64
	planMDE        float64
	planAlpha      float64
	planPower      float64
	planTails      int
	planArms       int
	planAdjustment string
)

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(decideCmd)
	rootCmd.AddCommand(rebalanceCmd)
	rootCmd.AddCommand(planCmd)

	statsCmd.Flags().BoolVar(&statsLatest, "latest", false, "Print the stored snapshot instead of recomputing")
	decideCmd.Flags().BoolVar(&decideConclude, "conclude", false, "Complete the experiment when a winner is found")
	rebalanceCmd.Flags().BoolVar(&rebalanceApply, "apply", false, "Write the proposed split")

	f := planCmd.Flags()
	f.Float64Var(&planBaseline, "baseline", 0, "Control conversion rate (required)")
	f.Float64Var(&planMDE, "mde", 0, "Minimum detectable relative effect (required)")
	f.Float64Var(&planAlpha, "alpha", 0, "Significance level (defaults to ABACUS_BASE_ALPHA)")
	f.Float64Var(&planPower, "power", 0.8, "Statistical power")
	f.IntVar(&planTails, "tails", 2, "1 or 2 tailed test")
	f.IntVar(&planArms, "arms", 2, "Number of variants including control")
	f.StringVar(&planAdjustment, "adjustment", "none", "Multiple comparison adjustment: none or bonferroni")
	_ = planCmd.MarkFlagRequired("baseline")
	_ = planCmd.MarkFlagRequired("mde")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if statsLatest {
		s, err := app.Services.Engine.LatestStatistics(ctx, args[0])
		if err != nil {
			return err
		}
		if s == nil {
			fmt.Fprintln(out, "No statistics stored yet; run without --latest to compute them")
			return nil
		}
		return printStatistics(out, s, false)
	}

	s, err := app.Services.Calculator.CalculateStatistics(ctx, args[0])
	if err != nil {
		return err
	}
	return printStatistics(out, s, true)
}

func printStatistics(out io.Writer, s *domain.ExperimentStatistics, withSequential bool) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VARIANT\tUSERS\tCONV\tRATE\tCI\tP-VALUE\tLIFT\tP(BEST)\tSIG")
	for _, v := range s.Variants {
		name := v.Variant
		if v.IsControl {
			name += " (control)"
		}
		if !v.HasData {
			fmt.Fprintf(w, "%s\t0\t0\t-\t-\t-\t-\t-\t\n", name)
			continue
		}
		sig := ""
		if v.StatisticalSignificance {
			sig = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t[%s, %s]\t%s\t%s\t%s\t%s\n",
			name,
			util.FormatNumber(v.TotalUsers),
			v.Conversions,
			util.FormatPercent(v.ConversionRate),
			util.FormatPercent(v.ConfidenceIntervalLower),
			util.FormatPercent(v.ConfidenceIntervalUpper),
			util.FormatPValue(v.PValue),
			util.FormatSignedPercent(v.RelativeLift),
			util.FormatPercent(v.ProbabilityBest),
			sig,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if withSequential {
		printSequential(out, s.Sequential)
	}
	fmt.Fprintf(out, "Calculated at %s\n", util.FormatTime(s.CalculatedAt))
	return nil
}

func printSequential(out io.Writer, b domain.SequentialBound) {
	fmt.Fprintf(out, "\nProgress: %d of %d planned users (%s), interim alpha %.5f\n",
		b.ObservedUsers, b.PlannedSampleSize, util.FormatPercent(b.Fraction), b.AdjustedAlpha)
}

func runDecide(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	d, err := app.Services.Decisions.Evaluate(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Decision: %s\n", d.Action)
	fmt.Fprintf(out, "Reason: %s\n", d.Reason)
	fmt.Fprintf(out, "Smallest arm: %d of %d required users\n", d.SmallestArm, d.MinimumSampleSize)
	printSequential(out, d.Sequential)

	if !decideConclude {
		return nil
	}
	exp, winner, err := app.Services.Decisions.Conclude(ctx, d.ExperimentID)
	if err != nil {
		return err
	}
	if winner == nil {
		fmt.Fprintln(out, "No winner yet; experiment left", exp.Status)
		return nil
	}
	fmt.Fprintf(out, "Completed %s: winner %s with %s confidence\n", exp.Name, winner.Variant, util.FormatPercent(winner.Confidence))
	return nil
}

func runRebalance(cmd *cobra.Command, args []string) error {
	r, err := app.Services.Allocator.RebalanceTraffic(cmd.Context(), args[0], rebalanceApply)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VARIANT\tRATE\tCURRENT\tPROPOSED")
	for _, name := range r.Previous.Variants() {
		fmt.Fprintf(w, "%s\t%s\t%d%%\t%d%%\n", name, util.FormatPercent(r.Rates[name]), r.Previous[name], r.Proposed[name])
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if r.Applied {
		fmt.Fprintln(out, "Applied new split", r.Proposed)
	} else {
		fmt.Fprintln(out, "Dry run; pass --apply to write the split")
	}
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	adjustment, err := stats.ParseAdjustment(planAdjustment)
	if err != nil {
		return err
	}
	if planArms < 2 {
		return domain.NewValidationError("arms", "must be at least 2")
	}
	alpha := app.Config.Stats.BaseAlpha
	if cmd.Flags().Changed("alpha") {
		alpha = planAlpha
	}

	plan, err := stats.SampleSize(stats.SampleSizeInput{
		BaselineRate:            planBaseline,
		MinimumDetectableEffect: planMDE,
		Alpha:                   alpha,
		Power:                   planPower,
		Tails:                   planTails,
		MultipleComparisons:     planArms - 1,
		Adjustment:              adjustment,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Baseline rate:\t%s\n", util.FormatPercent(plan.BaselineRate))
	fmt.Fprintf(w, "Target rate:\t%s\n", util.FormatPercent(plan.TargetRate))
	fmt.Fprintf(w, "Alpha:\t%.4f\n", plan.AdjustedAlpha)
	fmt.Fprintf(w, "Per arm:\t%d users\n", plan.PerArm)
	fmt.Fprintf(w, "Total (%d arms):\t%d users\n", planArms, plan.ForArms(planArms))
	return w.Flush()
}
