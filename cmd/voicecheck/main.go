// Command voicecheck runs the voice-command classifier and the date-time
// resolver against typed utterances, without a database or a server.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jmhodges/clock"
	"github.com/spf13/cobra"

	"github.com/RoyPeng126/ai-companion-sub000/internal/datetime"
	"github.com/RoyPeng126/ai-companion-sub000/internal/intent"
)

type options struct {
	now       string
	tzOffset  int
	role      string
	inSession bool
}

func main() {
	if err := newRootCmd(os.Stdout, clock.New()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer, clk clock.Clock) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "voicecheck",
		Short:         "Check how utterances are classified and resolved",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.now, "now", "", "reference time in RFC3339 (default: current time)")
	root.PersistentFlags().IntVar(&opts.tzOffset, "tz-offset", 8, "UTC offset in hours for resolved times")

	classify := &cobra.Command{
		Use:   "classify [utterance]",
		Short: "Print the intent of an utterance",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			got := intent.Classify(strings.Join(args, " "), intent.State{Role: opts.role, HasSession: opts.inSession})
			fmt.Fprintf(out, "intent=%s\n", got.Kind)
			if got.Ordinal > 0 {
				fmt.Fprintf(out, "ordinal=%d\n", got.Ordinal)
			}
			if got.Kind == intent.KindRespondFriendInvite || got.Kind == intent.KindRespondActivityInvite {
				fmt.Fprintf(out, "accept=%t\n", got.Accept)
			}
			if got.Target != "" {
				fmt.Fprintf(out, "target=%s\n", got.Target)
			}
			if got.Payload != "" {
				fmt.Fprintf(out, "payload=%s\n", got.Payload)
			}
			return nil
		},
	}
	classify.Flags().StringVar(&opts.role, "role", intent.RoleElder, "caller role")
	classify.Flags().BoolVar(&opts.inSession, "session", false, "caller has an open activity session")

	when := &cobra.Command{
		Use:   "when [utterance]",
		Short: "Print the instant an utterance refers to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver, err := opts.resolver(clk)
			if err != nil {
				return err
			}
			at, parsed, err := resolver.Resolve(strings.Join(args, " "), "")
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "at=%s\n", at.Format(time.RFC3339))
			fmt.Fprintf(out, "spoken=%s\n", resolver.Describe(at))
			fmt.Fprintf(out, "date_found=%t clock_found=%t\n", parsed.HasDate, parsed.HasClock)
			if parsed.Rest != "" {
				fmt.Fprintf(out, "rest=%s\n", parsed.Rest)
			}
			return nil
		},
	}

	root.AddCommand(classify, when)
	return root
}

func (o *options) resolver(clk clock.Clock) (*datetime.Resolver, error) {
	if o.tzOffset < -12 || o.tzOffset > 14 {
		return nil, fmt.Errorf("tz-offset out of range: %d", o.tzOffset)
	}
	loc := time.FixedZone(fmt.Sprintf("UTC%+d", o.tzOffset), o.tzOffset*3600)
	if raw := strings.TrimSpace(o.now); raw != "" {
		now, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("parse --now: %w", err)
		}
		fake := clock.NewFake()
		fake.Set(now)
		clk = fake
	}
	return datetime.NewResolver(clk, loc), nil
}
