package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"Soundscape/logger"
	"Soundscape/storage"
)

var (
	minioPrefix string
	minioStats  bool
	minioUpload string
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "Manage the sound bucket on MinIO",
	Long:  `List the sound files in the MinIO bucket, show bucket statistics, or upload a local sound directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := setup()
		defer logger.Sync()

		prefix := minioPrefix
		if prefix == "" {
			prefix = cfg.MinioPrefix
		}
		fmt.Printf("MinIO: %s, bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		client, err := storage.InitMinio(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect to minio: %w", err)
		}

		if minioUpload != "" {
			n, err := storage.UploadSounds(ctx, client, cfg.MinioBucket, prefix, minioUpload)
			if err != nil {
				return fmt.Errorf("upload after %d files: %w", n, err)
			}
			fmt.Printf("Uploaded %d files from %s\n", n, minioUpload)
			return nil
		}

		objects, stats, err := storage.ListSounds(ctx, client, cfg.MinioBucket, prefix)
		if err != nil {
			return fmt.Errorf("list objects: %w", err)
		}
		if !minioStats {
			for _, o := range objects {
				fmt.Printf("%10d  %s  %s\n", o.Size, o.LastModified.Format(time.RFC3339), o.Key)
			}
		}
		fmt.Printf("\n%d objects, %d bytes", stats.TotalObjects, stats.TotalSize)
		if !stats.LastModified.IsZero() {
			fmt.Printf(", last modified %s", stats.LastModified.Format(time.RFC3339))
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "object prefix, defaults to MINIO_PREFIX")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "only print bucket statistics")
	minioCmd.Flags().StringVarP(&minioUpload, "upload", "u", "", "upload every sound file under this directory")

	minioCmd.Example = `  # list all sounds
  soundscape minio

  # list one category
  soundscape minio -p "sounds/rain/"

  # statistics only
  soundscape minio -s

  # upload a local sound tree
  soundscape minio -u ./public`
}
