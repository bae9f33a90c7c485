package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"Soundscape/catalog"
	"Soundscape/db"
	"Soundscape/logger"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Work with the sound catalog",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the catalog by category",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := setup()
		defer logger.Sync()

		repo, err := catalog.Open(cfg)
		if err != nil {
			return err
		}
		if cfg.CatalogSource == "db" {
			defer db.CloseGormDB()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		cats, err := catalog.Categories(ctx, repo)
		if err != nil {
			return err
		}
		for _, c := range cats {
			fmt.Printf("%s (%d)\n", c.Name, len(c.Sounds))
			for _, s := range c.Sounds {
				fmt.Printf("  %-40s %s\n", s.Path, s.DisplayName)
			}
		}
		return nil
	},
}

var catalogSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Copy the built-in catalog into the database",
	Long:  `Create the sounds table if needed and upsert every built-in catalog entry into it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := setup()
		defer logger.Sync()

		cfg.CatalogSource = "db"
		repo, err := catalog.Open(cfg)
		if err != nil {
			return err
		}
		defer db.CloseGormDB()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		n, err := catalog.Seed(ctx, repo)
		if err != nil {
			return err
		}
		fmt.Printf("Seeded %d sounds into %s\n", n, cfg.DBName)
		return nil
	},
}

func init() {
	catalogCmd.AddCommand(catalogListCmd, catalogSeedCmd)
	rootCmd.AddCommand(catalogCmd)
}
