package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"plantdoc-yolo/internal/config"
	"plantdoc-yolo/internal/publish"
)

func publishCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish <file>",
		Short: "アーカイブをS3互換ストレージへアップロード",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.bindFlags(cmd, map[string]string{
				"bucket":   config.KeyS3Bucket,
				"prefix":   config.KeyS3Prefix,
				"endpoint": config.KeyS3Endpoint,
			}); err != nil {
				return err
			}

			// ラベル表などは不要なので Validate しない
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			uploader, err := publish.New(cmd.Context(), cfg.S3, a.logger)
			if err != nil {
				return err
			}
			location, err := uploader.Upload(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), location)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("bucket", "", "アップロード先のバケット")
	flags.String("prefix", "", "オブジェクトキーの接頭辞")
	flags.String("endpoint", "", "S3互換エンドポイント (MinIO など)")
	return cmd
}
