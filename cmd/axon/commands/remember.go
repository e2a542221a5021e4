package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/axon-agent/axon/internal/facts"
	"github.com/axon-agent/axon/internal/logging"
)

// NewRememberCmd constructs the `axon remember` command, which writes one
// fact through the sync coordinator.
func NewRememberCmd() *cobra.Command {
	var (
		thread   string
		domain   string
		identity string
		tags     []string
		locked   bool
		noEmbed  bool
	)

	cmd := &cobra.Command{
		Use:   "remember <key> <value>",
		Short: "Store a fact in memory",
		Long: `Store a key/value fact in the structured memory layer, with a semantic
vector counterpart unless --no-embed is given.

Writing to a locked fact fails; unlock it first with 'axon facts unlock'.

Examples:
  axon remember city Seattle --domain personal
  axon remember editor vim --domain preferences --tags setup
  axon remember birthday "14 March" --locked`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			eng, _, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("remember: %w", err)
			}
			defer eng.Close()

			f := &facts.Fact{
				ThreadID: thread,
				Key:      args[0],
				Value:    args[1],
				Identity: identity,
				Domain:   domain,
				Tags:     tags,
				Locked:   locked,
			}
			state, err := eng.PutFact(ctx, f, !noEmbed)
			if err != nil {
				return fmt.Errorf("remember: %w", err)
			}

			switch state {
			case facts.Unembedded:
				fmt.Printf("stored %s (embedding unavailable, fact-only)\n", f.Key)
			default:
				fmt.Printf("stored %s\n", f.Key)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&thread, "thread", "t", defaultThread, "Conversation thread the fact belongs to")
	cmd.Flags().StringVarP(&domain, "domain", "d", "", "Fact domain (e.g. personal, project)")
	cmd.Flags().StringVar(&identity, "identity", "", "Speaker or source the fact was learned from")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "Comma-separated fact tags")
	cmd.Flags().BoolVar(&locked, "locked", false, "Lock the fact against later modification")
	cmd.Flags().BoolVar(&noEmbed, "no-embed", false, "Skip the semantic vector counterpart")

	return cmd
}
