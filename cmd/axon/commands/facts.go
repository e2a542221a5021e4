package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/axon-agent/axon/internal/logging"
	"github.com/axon-agent/axon/internal/preload"
)

// NewFactsCmd constructs the `axon facts` command group for direct fact
// store management: list, show, delete, lock/unlock, and bulk load.
func NewFactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facts",
		Short: "Inspect and manage the structured fact store",
	}

	cmd.AddCommand(
		newFactsListCmd(),
		newFactsShowCmd(),
		newFactsDeleteCmd(),
		newFactsLockCmd(true),
		newFactsLockCmd(false),
		newFactsLoadCmd(),
	)

	return cmd
}

// newFactsListCmd constructs `axon facts list`.
func newFactsListCmd() *cobra.Command {
	var (
		thread string
		domain string
		tag    string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List facts, optionally filtered by domain and tag",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			eng, _, err := buildEngine(ctx, logging.New())
			if err != nil {
				return fmt.Errorf("facts list: %w", err)
			}
			defer eng.Close()

			list, err := eng.ListFacts(ctx, thread, domain, tag)
			if err != nil {
				return fmt.Errorf("facts list: %w", err)
			}

			if len(list) == 0 {
				fmt.Println("no facts")
				return nil
			}
			for _, f := range list {
				marks := ""
				if f.Locked {
					marks += " [locked]"
				}
				if len(f.Tags) > 0 {
					marks += " #" + strings.Join(f.Tags, " #")
				}
				fmt.Printf("%-20s %s%s\n", f.Key, f.Value, marks)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&thread, "thread", "t", defaultThread, "Conversation thread to list")
	cmd.Flags().StringVarP(&domain, "domain", "d", "", "Filter by domain")
	cmd.Flags().StringVar(&tag, "tag", "", "Filter by tag")
	return cmd
}

// newFactsShowCmd constructs `axon facts show`.
func newFactsShowCmd() *cobra.Command {
	var thread string

	cmd := &cobra.Command{
		Use:   "show <key>",
		Short: "Show one fact in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, _, err := buildEngine(ctx, logging.New())
			if err != nil {
				return fmt.Errorf("facts show: %w", err)
			}
			defer eng.Close()

			f, err := eng.GetFact(ctx, thread, args[0])
			if err != nil {
				return fmt.Errorf("facts show: %w", err)
			}

			fmt.Printf("key:         %s\n", f.Key)
			fmt.Printf("value:       %s\n", f.Value)
			fmt.Printf("thread:      %s\n", f.ThreadID)
			if f.Domain != "" {
				fmt.Printf("domain:      %s\n", f.Domain)
			}
			if f.Identity != "" {
				fmt.Printf("identity:    %s\n", f.Identity)
			}
			if len(f.Tags) > 0 {
				fmt.Printf("tags:        %s\n", strings.Join(f.Tags, ", "))
			}
			fmt.Printf("locked:      %t\n", f.Locked)
			fmt.Printf("embed_state: %s\n", f.EmbedState)
			fmt.Printf("updated:     %s\n", f.UpdatedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}

	cmd.Flags().StringVarP(&thread, "thread", "t", defaultThread, "Conversation thread of the fact")
	return cmd
}

// newFactsDeleteCmd constructs `axon facts delete`.
func newFactsDeleteCmd() *cobra.Command {
	var thread string

	cmd := &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a fact and its vector record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, _, err := buildEngine(ctx, logging.New())
			if err != nil {
				return fmt.Errorf("facts delete: %w", err)
			}
			defer eng.Close()

			if err := eng.DeleteFact(ctx, thread, args[0]); err != nil {
				return fmt.Errorf("facts delete: %w", err)
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&thread, "thread", "t", defaultThread, "Conversation thread of the fact")
	return cmd
}

// newFactsLockCmd constructs `axon facts lock` or `axon facts unlock`.
func newFactsLockCmd(lock bool) *cobra.Command {
	var thread string

	use, short := "lock <key>", "Lock a fact against modification"
	if !lock {
		use, short = "unlock <key>", "Unlock a fact for modification"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, _, err := buildEngine(ctx, logging.New())
			if err != nil {
				return fmt.Errorf("facts %s: %w", cmd.Name(), err)
			}
			defer eng.Close()

			if err := eng.SetLocked(ctx, thread, args[0], lock); err != nil {
				return fmt.Errorf("facts %s: %w", cmd.Name(), err)
			}
			fmt.Printf("%sed %s\n", cmd.Name(), args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&thread, "thread", "t", defaultThread, "Conversation thread of the fact")
	return cmd
}

// newFactsLoadCmd constructs `axon facts load`, which seeds the store from a
// YAML file through the engine.
func newFactsLoadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <file>",
		Short: "Load seed facts from a YAML file",
		Long: `Load facts from a YAML seed file. Every entry is written through the
engine, so lock checks apply and embeddings are created when requested.
One bad entry is skipped and reported; it never aborts the rest.

Example seed file:

  facts:
    - thread: default
      key: name
      value: Ada
      domain: personal
      locked: true
      embed: true`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			eng, _, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("facts load: %w", err)
			}
			defer eng.Close()

			res, err := preload.LoadFile(ctx, eng, args[0], log)
			if err != nil {
				return fmt.Errorf("facts load: %w", err)
			}

			fmt.Printf("loaded %d facts", res.Loaded)
			if len(res.Failures) > 0 {
				fmt.Printf(", %d failed:\n", len(res.Failures))
				for name, ferr := range res.Failures {
					fmt.Printf("  %s: %v\n", name, ferr)
				}
			} else {
				fmt.Println()
			}
			return nil
		},
	}

	return cmd
}
