package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"plantdoc-yolo/internal/balance"
	"plantdoc-yolo/internal/config"
	"plantdoc-yolo/internal/pipeline"
)

func statsCommand(a *app) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "均等化前後のクラス分布を表示 (ファイルは書き出さない)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.bindFlags(cmd, map[string]string{
				"target":    config.KeyTargetSamples,
				"seed":      config.KeySeed,
				"val-ratio": config.KeyValRatio,
			}); err != nil {
				return err
			}

			kind, err := pipeline.ParseKind(name)
			if err != nil {
				return err
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("設定エラー: %w", err)
			}
			p, err := pipeline.New(kind, cfg)
			if err != nil {
				return err
			}

			plan, err := pipeline.NewRunner(cfg, a.logger, a.metrics).Plan(cmd.Context(), p)
			if err != nil {
				return err
			}
			return renderPlan(cmd.OutOrStdout(), plan)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&name, "pipeline", "p", "", "対象のパイプライン (binary, species, disease)")
	flags.Int("target", 0, "クラスごとの目標サンプル数 (0=均等化なし)")
	flags.Int64("seed", 0, "乱数シード (0=時刻から生成)")
	flags.Float64("val-ratio", 0.2, "検証用ラベル表が無い場合の検証データ比率")
	_ = cmd.MarkFlagRequired("pipeline")

	return cmd
}

func renderPlan(out io.Writer, plan *pipeline.Plan) error {
	after := make(map[string]balance.ClassCount, len(plan.After))
	for _, cc := range plan.After {
		after[cc.Class] = cc
	}
	val := make(map[string]int, len(plan.ValDist))
	for _, cc := range plan.ValDist {
		val[cc.Class] = cc.Count
	}

	fmt.Fprintf(out, "pipeline: %s (target %d)\n", plan.Kind, plan.Balance.Target)

	table := tablewriter.NewWriter(out)
	table.Header("Index", "Class", "Before", "Before %", "After", "After %", "Val")
	for i, class := range plan.Classes {
		before := balance.ClassCount{Class: class}
		for _, cc := range plan.Before {
			if cc.Class == class {
				before = cc
			}
		}
		table.Append([]string{
			fmt.Sprintf("%d", i),
			class,
			fmt.Sprintf("%d", before.Count),
			fmt.Sprintf("%.2f", before.Percent),
			fmt.Sprintf("%d", after[class].Count),
			fmt.Sprintf("%.2f", after[class].Percent),
			fmt.Sprintf("%d", val[class]),
		})
	}
	if err := table.Render(); err != nil {
		return err
	}

	reasons := make([]string, 0, len(plan.Filter.Dropped))
	for reason := range plan.Filter.Dropped {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Fprintf(out, "dropped %s: %d\n", reason, plan.Filter.Dropped[reason])
	}
	if len(plan.Filter.Excluded) > 0 {
		fmt.Fprintf(out, "excluded: %v\n", plan.Filter.Excluded)
	}
	fmt.Fprintf(out, "train: %d -> %d, val: %d\n", len(plan.Train)-plan.Balance.Added, len(plan.Train), len(plan.Val))
	return nil
}
