package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/axon-agent/axon/internal/engine"
	"github.com/axon-agent/axon/internal/logging"
)

// NewRecallCmd constructs the `axon recall` command, which runs the hybrid
// retrieval path over both memory layers and prints the ranked results.
func NewRecallCmd() *cobra.Command {
	var (
		thread string
		domain string
		tag    string
		k      int
	)

	cmd := &cobra.Command{
		Use:   "recall <query>",
		Short: "Search memory with hybrid ranking",
		Long: `Search memory for the given natural language query.

The structured fact list and the semantic index are queried in parallel and
blended by the hybrid ranker. When the embedder or the vector index is
unreachable the search degrades to fact-only results instead of failing.

Examples:
  axon recall "where do I live"
  axon recall --domain project --top 3 "deadline"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			eng, _, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("recall: %w", err)
			}
			defer eng.Close()

			results, err := eng.Retrieve(ctx, engine.RetrieveRequest{
				ThreadID: thread,
				Query:    args[0],
				K:        k,
				Domain:   domain,
				Tag:      tag,
			})
			if err != nil {
				return fmt.Errorf("recall: %w", err)
			}

			if len(results) == 0 {
				fmt.Println("no results")
				return nil
			}
			for i, r := range results {
				lock := ""
				if r.Locked {
					lock = " [locked]"
				}
				fmt.Printf("%d. %s = %s (score %.3f)%s\n", i+1, r.Key, r.Value, r.Score, lock)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&thread, "thread", "t", defaultThread, "Conversation thread to search")
	cmd.Flags().StringVarP(&domain, "domain", "d", "", "Restrict results to one domain")
	cmd.Flags().StringVar(&tag, "tag", "", "Restrict results to facts carrying this tag")
	cmd.Flags().IntVar(&k, "top", 5, "Maximum number of results")

	return cmd
}
