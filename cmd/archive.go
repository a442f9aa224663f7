package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"plantdoc-yolo/internal/processor"
)

func archiveCommand(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "archive <dir>",
		Short: "作成済みのデータセットディレクトリをtarにまとめる",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := processor.CreateTarArchive(args[0], output, a.logger)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "tarファイルのパス (既定: <dir>.tar)")
	return cmd
}
