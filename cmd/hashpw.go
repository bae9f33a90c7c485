package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"Soundscape/core/auth"
)

var hashpwCmd = &cobra.Command{
	Use:   "hashpw PASSWORD",
	Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashpwCmd)
}
