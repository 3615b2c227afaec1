package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vcompressor/app/async"
	"vcompressor/app/compressor"
	"vcompressor/app/config"
	"vcompressor/app/engine"
	"vcompressor/app/logger"
	"vcompressor/app/media"
	"vcompressor/app/options"
	"vcompressor/app/service"
	"vcompressor/app/utils"
)

var (
	compressOutput string
	compressPolicy string
	compressPoster bool
)

var compressCmd = &cobra.Command{
	Use:   "compress <input>",
	Short: "压缩单个视频，Ctrl-C 取消",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()

		log := logger.New(cfg.Log)
		defer log.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		input := args[0]
		output := compressOutput
		if output == "" {
			output = service.DefaultOutputPath(input)
		}

		name := compressPolicy
		if name == "" {
			name = cfg.Compress.Policy
		}
		policy, err := options.ParsePolicy(name)
		if err != nil {
			return err
		}

		inspector := media.NewFFprobeInspector(cfg.FFmpeg.FFprobePath, log.Named("ffprobe").Logger)
		source, err := media.NewSource(ctx, inspector, input)
		if err != nil {
			return err
		}

		opts, err := options.Apply(policy, source, output, cfg.Compress.PolicyConfig())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "源: %s\n参数: %s\n", source, opts)

		// 回调在主 goroutine 上执行
		looper := async.NewLooper(64)
		out := cmd.OutOrStdout()
		comp := compressor.New(engine.NewFFmpegEngine(cfg.FFmpeg, log.Named("ffmpeg")), log.Named("compressor"))

		task := comp.Compress(opts, async.Callbacks[compressor.Result]{
			OnProgress: func(percent int) {
				fmt.Fprintf(out, "\r压缩中 %3d%%", percent)
			},
			OnSuccess: func(result compressor.Result) {
				fmt.Fprintf(out, "\n完成: %s\n", result)
			},
			OnError: func(err error) {
				fmt.Fprintf(out, "\n失败: %v\n", err)
			},
			OnCancel: func() {
				fmt.Fprintln(out, "\n已取消")
			},
			OnComplete: looper.Quit,
		}, async.WithLooper(looper))

		if err := task.Start(ctx); err != nil {
			return err
		}
		looper.Loop(context.Background())

		result, err := task.Wait(context.Background())
		if err != nil {
			return err
		}
		if !result.Success {
			return errors.New("转码结束但输出文件缺失或为空")
		}

		if compressPoster {
			poster := utils.ReplaceExt(result.Output, ".jpg")
			gen := engine.NewPosterGenerator(cfg.FFmpeg.FFmpegPath, cfg.Compress.PosterWidth, cfg.Compress.PosterBadge, log.Named("poster"))
			if err := gen.Generate(ctx, result.Output, poster, time.Second); err != nil {
				return fmt.Errorf("生成封面失败: %w", err)
			}
			fmt.Fprintf(out, "封面: %s\n", poster)
		}
		return nil
	},
}

func init() {
	compressCmd.Flags().StringVarP(&compressOutput, "output", "o", "", "输出文件（默认 <input>_compressed.mp4）")
	compressCmd.Flags().StringVarP(&compressPolicy, "policy", "p", "", "压缩策略: as_usual, general, camera")
	compressCmd.Flags().BoolVar(&compressPoster, "poster", false, "同时生成封面")
	rootCmd.AddCommand(compressCmd)
}
