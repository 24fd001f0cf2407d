package cli

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"KnowledgeScanner/internal/app"
)

// NewPollCommand runs one intake cycle and prints its counters.
func NewPollCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Poll every configured source once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), rootOpts, func(ctx context.Context, a *app.Application) error {
				res, err := a.Pipeline().Poll(ctx)
				if writeErr := writeJSON(cmd.OutOrStdout(), res); writeErr != nil {
					return writeErr
				}
				return err
			})
		},
	}
}

type drainOutput struct {
	Published int      `json:"published"`
	Failed    int      `json:"failed"`
	PageIDs   []string `json:"pageIds,omitempty"`
}

// NewDrainCommand publishes every pending entry once.
func NewDrainCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Publish every queued entry to the knowledge base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), rootOpts, func(ctx context.Context, a *app.Application) error {
				res, err := a.Pipeline().DrainAndPublish(ctx)
				out := drainOutput{Published: res.Published, Failed: res.Failed, PageIDs: res.PageIDs}
				if writeErr := writeJSON(cmd.OutOrStdout(), out); writeErr != nil {
					return writeErr
				}
				return err
			})
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
