package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/abacus/internal/util"
)

var featureCmd = &cobra.Command{
	Use:   "feature",
	Short: "Manage feature flags linked to experiments",
	Long: `Feature flags can be linked to an experiment. While linked, assigning a
user by feature name returns the experiment's variant.`,
}

var featureCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a feature flag",
	Args:  cobra.ExactArgs(1),
	RunE:  runFeatureCreate,
}

var featureListCmd = &cobra.Command{
	Use:   "list",
	Short: "List feature flags",
	Args:  cobra.NoArgs,
	RunE:  runFeatureList,
}

var featureLinkCmd = &cobra.Command{
	Use:   "link <feature> <experiment>",
	Short: "Drive a feature flag by an experiment",
	Args:  cobra.ExactArgs(2),
	RunE:  runFeatureLink,
}

var featureUnlinkCmd = &cobra.Command{
	Use:   "unlink <feature>",
	Short: "Detach a feature flag from its experiment",
	Args:  cobra.ExactArgs(1),
	RunE:  runFeatureUnlink,
}

var featureEnabled bool

func init() {
	rootCmd.AddCommand(featureCmd)

	featureCmd.AddCommand(featureCreateCmd)
	featureCmd.AddCommand(featureListCmd)
	featureCmd.AddCommand(featureLinkCmd)
	featureCmd.AddCommand(featureUnlinkCmd)

	featureCreateCmd.Flags().BoolVar(&featureEnabled, "enabled", false, "Create the flag enabled")
}

func runFeatureCreate(cmd *cobra.Command, args []string) error {
	f, err := app.Services.Features.CreateFeature(cmd.Context(), args[0], featureEnabled)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created feature %s (%s)\n", f.Name, f.ID)
	return nil
}

func runFeatureList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	features, err := app.Services.Features.ListFeatures(ctx)
	if err != nil {
		return fmt.Errorf("failed to list features: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(features) == 0 {
		fmt.Fprintln(out, "No features found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tENABLED\tEXPERIMENT\tUPDATED")
	for _, f := range features {
		linked := "-"
		if f.ExperimentID != nil {
			linked = *f.ExperimentID
			if exp, err := app.Services.Registry.Get(ctx, *f.ExperimentID); err == nil {
				linked = exp.Name
			}
		}
		fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", f.Name, f.Enabled, linked, util.FormatTime(f.UpdatedAt))
	}
	return w.Flush()
}

func runFeatureLink(cmd *cobra.Command, args []string) error {
	f, err := app.Services.Features.LinkExperimentToFeature(cmd.Context(), args[1], args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Feature %s is now driven by experiment %s\n", f.Name, args[1])
	return nil
}

func runFeatureUnlink(cmd *cobra.Command, args []string) error {
	f, err := app.Services.Features.UnlinkExperimentFromFeature(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Feature %s unlinked\n", f.Name)
	return nil
}
