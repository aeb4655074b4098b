package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/abacus/internal/domain"
	"github.com/emiliopalmerini/abacus/internal/experiment"
	"github.com/emiliopalmerini/abacus/internal/util"
)

var assignCmd = &cobra.Command{
	Use:   "assign <experiment|feature> <user-id>",
	Short: "Get or create a user's variant",
	Long: `Print the user's variant. The first call for a user of a running
experiment buckets them deterministically; later calls return the same variant.

Examples:
  abacus assign checkout-button user-42
  abacus assign new-nav-flag user-42`,
	Args: cobra.ExactArgs(2),
	RunE: runAssign,
}

var trackCmd = &cobra.Command{
	Use:   "track <experiment> <user-id> <event-type>",
	Short: "Record an event for an assigned user",
	Long: `Record an event. The variant defaults to the user's assignment and the
value defaults to 1.

Examples:
  abacus track checkout-button user-42 purchase --value 39.90
  abacus track checkout-button user-42 click --meta page=cart --meta source=email`,
	Args: cobra.ExactArgs(3),
	RunE: runTrack,
}

var eventsCmd = &cobra.Command{
	Use:   "events <experiment>",
	Short: "List recent events of an experiment",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvents,
}

// Flags
var (
	trackVariant string
	trackValue   float64
	trackSession string
	trackMeta    []string
	eventsLimit  int
)

func init() {
	rootCmd.AddCommand(assignCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(eventsCmd)

	trackCmd.Flags().StringVar(&trackVariant, "variant", "", "Variant the event was observed under (must match the assignment)")
	trackCmd.Flags().Float64Var(&trackValue, "value", 1, "Event value")
	trackCmd.Flags().StringVar(&trackSession, "session", "", "Session identifier")
	trackCmd.Flags().StringSliceVar(&trackMeta, "meta", nil, "Metadata as key=value, repeatable")

	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 20, "Maximum number of events (0 for all)")
}

func runAssign(cmd *cobra.Command, args []string) error {
	a, err := app.Services.Assigner.GetVariant(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), a.Variant)
	return nil
}

func runTrack(cmd *cobra.Command, args []string) error {
	meta, err := domain.ParseMetadata(trackMeta)
	if err != nil {
		return err
	}

	in := experiment.TrackEventInput{
		ExperimentID: args[0],
		UserID:       args[1],
		EventType:    args[2],
		Variant:      trackVariant,
		SessionID:    optionalString(cmd, "session", trackSession),
		Metadata:     meta,
	}
	if cmd.Flags().Changed("value") {
		in.EventValue = &trackValue
	}

	ev, err := app.Services.Tracker.TrackEvent(cmd.Context(), in)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s for %s (%s, value %g)\n", ev.EventType, ev.UserID, ev.Variant, ev.EventValue)
	return nil
}

func runEvents(cmd *cobra.Command, args []string) error {
	if eventsLimit < 0 {
		return fmt.Errorf("invalid --limit %d", eventsLimit)
	}
	events, err := app.Services.Tracker.ListEvents(cmd.Context(), args[0], eventsLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(out, "No events found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tUSER\tVARIANT\tEVENT\tVALUE")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%g\n", util.FormatTime(e.CreatedAt), e.UserID, e.Variant, e.EventType, e.EventValue)
	}
	return w.Flush()
}
