package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/sauron/internal/config"
	"github.com/kozaktomas/sauron/internal/embedding"
	"github.com/kozaktomas/sauron/internal/verify"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search a camera feed for one target face",
	Long: `Load a reference image of the target, watch a camera (or a recorded
video) and stop at the first frame with a matching face. The detection is
appended to the detection log and an annotated evidence frame is saved.`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().String("target", "", "Reference image of the target (required)")
	searchCmd.Flags().String("label", "", "Target label (defaults to the image file name)")
	searchCmd.Flags().String("camera", "/dev/video0", "Camera device, stream URL or video file")
	searchCmd.Flags().String("format", "", "ffmpeg input format for the camera (e.g. v4l2, dshow)")
	searchCmd.Flags().String("driver", config.DriverFFmpeg, "Capture driver: ffmpeg or gocv (needs a -tags gocv build)")
	searchCmd.Flags().Float64("threshold", 0, "Maximum face distance for a match (defaults to SAURON_SIMILARITY_THRESHOLD)")
	searchCmd.Flags().Bool("keep-target", false, "Copy the target image into SAURON_TARGET_DIR")
	_ = searchCmd.MarkFlagRequired("target")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	overrideFloat64(cmd, "threshold", &cfg.SimilarityThreshold)
	if err := cfg.Validate(); err != nil {
		return err
	}
	threshold := cfg.SimilarityThreshold

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider := embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Timeout)
	target, err := verify.LoadTarget(ctx, mustGetString(cmd, "target"), mustGetString(cmd, "label"), provider)
	if err != nil {
		return err
	}
	if mustGetBool(cmd, "keep-target") {
		if err := target.KeepCopy(cfg.TargetDir); err != nil {
			return fmt.Errorf("failed to keep target image: %w", err)
		}
	}

	sink, _, cleanup, err := detectionSinks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	cam := config.CameraFromDevice("cam0", mustGetString(cmd, "camera"), mustGetString(cmd, "format"))
	if cam.Driver, err = getDriver(cmd, config.DriverFFmpeg); err != nil {
		return err
	}
	src, err := openSource(ctx, cam, cfg.FfmpegPath, logger)
	if err != nil {
		return fmt.Errorf("failed to open camera: %w", err)
	}

	v, err := verify.NewLiveVerifier(target, src, provider, sink,
		verify.WithThreshold(threshold),
		verify.WithEvidenceDir(cfg.EvidenceDir),
		verify.WithRetry(retryPolicy(cfg.CaptureRetries)),
		verify.WithLogger(logger),
	)
	if err != nil {
		src.Close()
		return err
	}

	fmt.Printf("Searching %s for %s (threshold %.2f)...\n", cam.Device, target.Label, threshold)
	det, err := v.Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		fmt.Println("\nSearch stopped.")
		return nil
	case det != nil:
		fmt.Printf("%s detected\n", target.Label)
		fmt.Printf("  Frame:    %d\n", det.FrameIndex)
		fmt.Printf("  Distance: %.4f\n", det.Distance)
		fmt.Printf("  Evidence: %s\n", det.Event.EvidencePath)
		fmt.Printf("  Logged:   %s\n", cfg.DetectionLog)
		if err != nil {
			return fmt.Errorf("detection was not fully recorded: %w", err)
		}
		return nil
	case err != nil:
		return err
	}

	fmt.Printf("%s not detected\n", target.Label)
	return nil
}
