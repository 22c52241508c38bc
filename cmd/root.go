package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/sauron/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "sauron",
	Short: "Watch camera feeds for known and unknown faces",
	Long: `Sauron watches one or more camera feeds, assigns a stable identity to every
face it sees and keeps a handful of sample crops per person. It can also hunt
for one specific target face and log the first confirmed sighting, or scan a
recorded video for frames containing a reference image.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig reads the environment and builds the logger for a command run.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := config.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	if cfg.IsDevelopment() {
		logger.Debug("configuration loaded",
			"threshold", cfg.SimilarityThreshold,
			"max_images_per_person", cfg.MaxImagesPerPerson,
			"match_policy", cfg.MatchPolicy,
			"face_dir", cfg.FaceDir,
			"detection_log", cfg.DetectionLog,
			"database", cfg.Database.URL != "",
		)
	}
	return cfg, logger, nil
}
