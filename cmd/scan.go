package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/sauron/internal/capture"
	"github.com/kozaktomas/sauron/internal/config"
	"github.com/kozaktomas/sauron/internal/verify"
)

var scanCmd = &cobra.Command{
	Use:   "scan <video>",
	Short: "Find every frame of a video that contains a target image",
	Long: `Scan a recorded video (or a directory of frames) from start to end with
normalized template matching and report every frame whose best match exceeds
the threshold.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().String("target", "", "Target image to search for (required)")
	scanCmd.Flags().Float64("threshold", 0, "Match threshold in (0, 1] (defaults to SAURON_TEMPLATE_THRESHOLD)")
	scanCmd.Flags().Bool("no-progress", false, "Disable the progress bar")
	scanCmd.Flags().String("driver", config.DriverFFmpeg, "Capture driver: ffmpeg or gocv (needs a -tags gocv build)")
	_ = scanCmd.MarkFlagRequired("target")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	overrideFloat64(cmd, "threshold", &cfg.TemplateThreshold)
	if err := cfg.Validate(); err != nil {
		return err
	}
	threshold := cfg.TemplateThreshold

	scanner, err := verify.NewVideoScanner(mustGetString(cmd, "target"),
		verify.WithScanThreshold(threshold),
		verify.WithScanRetry(retryPolicy(cfg.CaptureRetries)),
		verify.WithScanLogger(logger),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver, err := getDriver(cmd, config.DriverFFmpeg)
	if err != nil {
		return err
	}
	video := config.CameraConfig{ID: "video", Device: args[0], Driver: driver}
	if isCameraDevice(video.Device) {
		return fmt.Errorf("%s is not a video file or frame directory", video.Device)
	}
	src, err := openSource(ctx, video, cfg.FfmpegPath, logger)
	if err != nil {
		return fmt.Errorf("failed to open video: %w", err)
	}

	var progress func(int)
	if !mustGetBool(cmd, "no-progress") {
		bar := progressbar.NewOptions(capture.FrameCount(src),
			progressbar.OptionSetDescription("Scanning frames"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("frames"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
		defer bar.Finish()
		progress = func(int) { _ = bar.Add(1) }
	}

	frames, err := scanner.Scan(ctx, src, progress)
	if errors.Is(err, context.Canceled) {
		fmt.Println("\nScan stopped.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(verify.FormatResult(frames))
	return nil
}
