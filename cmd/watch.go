package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/sauron/internal/config"
	"github.com/kozaktomas/sauron/internal/database/postgres"
	"github.com/kozaktomas/sauron/internal/detectlog"
	"github.com/kozaktomas/sauron/internal/embedding"
	"github.com/kozaktomas/sauron/internal/pipeline"
	"github.com/kozaktomas/sauron/internal/registry"
	"github.com/kozaktomas/sauron/internal/samples"
	"github.com/kozaktomas/sauron/internal/web"
	"github.com/kozaktomas/sauron/internal/web/handlers"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch cameras and track face identities",
	Long: `Start a stream processor for every configured camera and serve the
dashboard. Every detected face is matched against the identity registry;
unknown faces get a new identity and sample crops are saved under the face
directory. Live target verifiers can be started from the web API.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringSlice("camera", nil, "Camera device, stream URL or video file (repeatable; overrides the cameras file)")
	watchCmd.Flags().String("format", "", "ffmpeg input format for --camera devices (e.g. v4l2, dshow)")
	watchCmd.Flags().String("driver", "", "Capture driver for --camera devices: ffmpeg or gocv (needs a -tags gocv build)")
	watchCmd.Flags().Bool("active", false, "Enable detection on all cameras at start")
	watchCmd.Flags().Int("port", 0, "Port to listen on (overrides SAURON_WEB_PORT)")
	watchCmd.Flags().String("host", "", "Host to bind to (overrides SAURON_WEB_HOST)")
}

// detectionSinks builds the CSV log and, when a database is configured, the
// PostgreSQL sink next to it. The returned cleanup closes the pool.
func detectionSinks(ctx context.Context, cfg *config.Config, logger *slog.Logger) (detectlog.Sink, handlers.DetectionLister, func(), error) {
	csvLog := detectlog.NewCSVLog(cfg.DetectionLog)
	if cfg.Database.URL == "" {
		return csvLog, nil, func() {}, nil
	}

	logger.Info("connecting to PostgreSQL")
	pool, err := postgres.Open(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	repo := postgres.NewDetectionRepository(pool)
	cleanup := func() {
		if err := pool.Close(); err != nil {
			logger.Warn("failed to close database", "error", err)
		}
	}
	return detectlog.Multi{csvLog, detectlog.NewPostgresSink(repo)}, repo, cleanup, nil
}

func newRegistry(cfg *config.Config, logger *slog.Logger) (*registry.Registry, error) {
	policy, err := registry.ParsePolicy(cfg.MatchPolicy)
	if err != nil {
		return nil, err
	}
	return registry.New(
		registry.WithThreshold(cfg.SimilarityThreshold),
		registry.WithMaxSamples(cfg.MaxImagesPerPerson),
		registry.WithSampleStore(samples.NewDirStore(cfg.FaceDir)),
		registry.WithPolicy(policy),
		registry.WithLogger(logger),
	), nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	overrideInt(cmd, "port", &cfg.Web.Port)
	overrideString(cmd, "host", &cfg.Web.Host)
	if err := cfg.Validate(); err != nil {
		return err
	}

	driver, err := getDriver(cmd, "")
	if err != nil {
		return err
	}
	cams, err := resolveCameras(mustGetStringSlice(cmd, "camera"), mustGetString(cmd, "format"), driver, cfg.CamerasFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, err := newRegistry(cfg, logger)
	if err != nil {
		return err
	}

	sink, lister, cleanup, err := detectionSinks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	provider := embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Timeout)
	frames := pipeline.NewLatestFrames()
	retry := retryPolicy(cfg.CaptureRetries)

	manager := pipeline.NewManager(pipeline.ManagerConfig{
		Provider:  provider,
		Registry:  reg,
		Publisher: frames,
		Retry:     retry,
		SortBoxes: cfg.SortBoxes,
		Logger:    logger,
	})
	active := mustGetBool(cmd, "active")
	for _, cam := range cams {
		if err := manager.Add(pipeline.Camera{ID: cam.ID, Open: sourceOpener(cam, cfg.FfmpegPath, logger)}); err != nil {
			return err
		}
		if active {
			if err := manager.SetActive(cam.ID, true); err != nil {
				return err
			}
		}
		logger.Info("camera configured", "camera", cam.ID, "device", cam.Device, "driver", cam.Driver)
	}

	server := web.NewServer(cfg.Web, web.Deps{
		Manager:  manager,
		Frames:   frames,
		Registry: reg,
		Verifiers: handlers.VerifierDeps{
			Provider:    provider,
			Sink:        sink,
			Sources:     manager.Opener,
			Publisher:   frames,
			Threshold:   cfg.SimilarityThreshold,
			EvidenceDir: cfg.EvidenceDir,
			Retry:       retry,
			Logger:      logger,
		},
		DetectionLog: cfg.DetectionLog,
		Detections:   lister,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return manager.Run(gctx)
	})
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.IsProduction() {
		logger.Info("watching", "cameras", len(cams), "addr", server.Addr())
	} else {
		fmt.Printf("Watching %d camera(s), dashboard at http://%s\n", len(cams), server.Addr())
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("stopped", "identities", reg.Len())
	return nil
}
