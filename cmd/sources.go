package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kozaktomas/sauron/internal/capture"
	"github.com/kozaktomas/sauron/internal/config"
	"github.com/kozaktomas/sauron/internal/pipeline"
)

// isCameraDevice reports whether device names a live input rather than a
// recorded file or frame directory.
func isCameraDevice(device string) bool {
	if strings.HasPrefix(device, "/dev/") || strings.Contains(device, "://") {
		return true
	}
	_, err := os.Stat(device)
	return err != nil
}

// openSource opens a camera, a video file or a directory of frames.
func openSource(ctx context.Context, cam config.CameraConfig, ffmpegPath string, logger *slog.Logger) (capture.Source, error) {
	if cam.Driver == config.DriverGocv {
		return capture.OpenGocv(cam.ID, cam.Device, cam.Width, cam.Height)
	}
	if info, err := os.Stat(cam.Device); err == nil && info.IsDir() {
		src, err := capture.OpenImageDir(cam.ID, cam.Device)
		if err != nil {
			return nil, err
		}
		return src, nil
	}

	ffcfg := capture.FFmpegConfig{
		FFmpegPath: ffmpegPath,
		Width:      cam.Width,
		Height:     cam.Height,
		FPS:        cam.FPS,
		Format:     cam.Format,
		Logger:     logger,
	}
	var (
		src *capture.FFmpegSource
		err error
	)
	if isCameraDevice(cam.Device) {
		src, err = capture.OpenCamera(ctx, cam.ID, cam.Device, ffcfg)
	} else {
		// Recorded files keep their native size.
		ffcfg.Width, ffcfg.Height = 0, 0
		src, err = capture.OpenFile(ctx, cam.ID, cam.Device, ffcfg)
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}

// sourceOpener binds openSource to one camera entry for the manager.
func sourceOpener(cam config.CameraConfig, ffmpegPath string, logger *slog.Logger) pipeline.SourceOpener {
	return func(ctx context.Context) (capture.Source, error) {
		return openSource(ctx, cam, ffmpegPath, logger)
	}
}

// resolveCameras returns the cameras given by --camera flags, or the cameras
// file when no flag was set.
func resolveCameras(devices []string, format, driver, camerasFile string) ([]config.CameraConfig, error) {
	if len(devices) > 0 {
		cams := make([]config.CameraConfig, len(devices))
		for i, d := range devices {
			cams[i] = config.CameraFromDevice(fmt.Sprintf("cam%d", i), d, format)
			if driver != "" {
				cams[i].Driver = driver
			}
		}
		return cams, nil
	}

	cams, err := config.LoadCameras(camerasFile)
	if err != nil {
		return nil, fmt.Errorf("no --camera given and %w", err)
	}
	if len(cams) == 0 {
		return nil, fmt.Errorf("no cameras configured in %s", camerasFile)
	}
	return cams, nil
}

// retryPolicy maps SAURON_CAPTURE_RETRIES to a policy; zero retries forever.
func retryPolicy(retries int) capture.RetryPolicy {
	if retries <= 0 {
		return capture.RetryForever()
	}
	return capture.RetryBudget(retries)
}
