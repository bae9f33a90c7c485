package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"Soundscape/db"
	"Soundscape/logger"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Check the Redis connection",
	Long:  `Connect to Redis and run a basic write/read/delete round trip.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := setup()
		defer logger.Sync()

		fmt.Printf("Redis: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)
		if err := db.ConnectRedis(cfg); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer func() {
			if err := db.CloseRedis(); err != nil {
				logger.Warn("Close Redis failed", logger.ErrorField(err))
			}
		}()
		fmt.Println("Redis connected.")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.TestRedis(ctx); err != nil {
			return fmt.Errorf("redis round trip: %w", err)
		}
		fmt.Println("Redis round trip ok.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
