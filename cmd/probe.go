package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"vcompressor/app/config"
	"vcompressor/app/logger"
	"vcompressor/app/media"
	"vcompressor/app/options"
)

var probePolicy string

var probeCmd = &cobra.Command{
	Use:   "probe <input>",
	Short: "检测视频参数并预览压缩参数",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()

		log := logger.New(cfg.Log)
		defer log.Close()

		inspector := media.NewFFprobeInspector(cfg.FFmpeg.FFprobePath, log.Named("ffprobe").Logger)
		source, err := media.NewSource(cmd.Context(), inspector, args[0])
		if err != nil {
			return err
		}

		report := map[string]any{"source": source.Info()}

		if probePolicy != "" {
			policy, err := options.ParsePolicy(probePolicy)
			if err != nil {
				return err
			}
			opts, err := options.Apply(policy, source, "preview.mp4", cfg.Compress.PolicyConfig())
			if err != nil {
				return err
			}
			report["policy"] = policy.String()
			report["options"] = map[string]int{
				"width":   opts.Width(),
				"height":  opts.Height(),
				"bitrate": opts.Bitrate(),
				"fps":     opts.FPS(),
			}
		}

		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	probeCmd.Flags().StringVarP(&probePolicy, "policy", "p", "", "同时计算该策略下的压缩参数")
	rootCmd.AddCommand(probeCmd)
}
