package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"Soundscape/logger"
	"Soundscape/repository"
	"Soundscape/server"
)

var mixesCmd = &cobra.Command{
	Use:   "mixes",
	Short: "Inspect saved mixes",
}

// withMixes opens the configured mix store for one command.
func withMixes(fn func(ctx context.Context, repo *repository.MixRepository) error) error {
	cfg := setup()
	defer logger.Sync()

	store, closeStore, err := server.OpenMixStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return fn(ctx, repository.NewMixRepository(store))
}

var mixesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved mixes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMixes(func(ctx context.Context, repo *repository.MixRepository) error {
			mixes, err := repo.List(ctx)
			if err != nil {
				return err
			}
			for _, m := range mixes {
				fmt.Printf("%-30s %3d tracks  %s\n", m.Name, m.TrackCount, m.Timestamp.Local().Format(time.RFC3339))
			}
			return nil
		})
	},
}

var mixesShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Print a saved mix as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMixes(func(ctx context.Context, repo *repository.MixRepository) error {
			mix, err := repo.Load(ctx, args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(mix)
		})
	},
}

var mixesDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a saved mix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMixes(func(ctx context.Context, repo *repository.MixRepository) error {
			if err := repo.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %q\n", args[0])
			return nil
		})
	},
}

func init() {
	mixesCmd.AddCommand(mixesListCmd, mixesShowCmd, mixesDeleteCmd)
	rootCmd.AddCommand(mixesCmd)
}
