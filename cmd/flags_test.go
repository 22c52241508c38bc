package cmd

import (
	"testing"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/sauron/internal/config"
)

func newFlagCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().Float64("threshold", 0, "")
	cmd.Flags().Int("port", 0, "")
	cmd.Flags().String("host", "", "")
	cmd.Flags().String("driver", "", "")
	return cmd
}

func TestOverride_UnsetKeepsConfig(t *testing.T) {
	cmd := newFlagCmd()
	threshold, port, host := 0.6, 8080, "0.0.0.0"

	overrideFloat64(cmd, "threshold", &threshold)
	overrideInt(cmd, "port", &port)
	overrideString(cmd, "host", &host)

	if threshold != 0.6 || port != 8080 || host != "0.0.0.0" {
		t.Errorf("values changed without flags: %v %d %q", threshold, port, host)
	}
}

func TestOverride_ExplicitValuesWin(t *testing.T) {
	cmd := newFlagCmd()
	for name, val := range map[string]string{"threshold": "0", "port": "9090", "host": "127.0.0.1"} {
		if err := cmd.Flags().Set(name, val); err != nil {
			t.Fatal(err)
		}
	}
	threshold, port, host := 0.6, 8080, "0.0.0.0"

	overrideFloat64(cmd, "threshold", &threshold)
	overrideInt(cmd, "port", &port)
	overrideString(cmd, "host", &host)

	// An explicit zero is kept so config validation can reject it.
	if threshold != 0 {
		t.Errorf("threshold = %v, want 0", threshold)
	}
	if port != 9090 {
		t.Errorf("port = %d, want 9090", port)
	}
	if host != "127.0.0.1" {
		t.Errorf("host = %q, want 127.0.0.1", host)
	}

	cfg := config.Default()
	cfg.SimilarityThreshold = threshold
	if err := cfg.Validate(); err == nil {
		t.Error("expected zero threshold to fail validation")
	}
}

func TestGetDriver(t *testing.T) {
	tests := []struct {
		flag     string
		fallback string
		want     string
		wantErr  bool
	}{
		{"", "", "", false},
		{"", config.DriverFFmpeg, config.DriverFFmpeg, false},
		{"gocv", config.DriverFFmpeg, config.DriverGocv, false},
		{"ffmpeg", "", config.DriverFFmpeg, false},
		{"v4l", config.DriverFFmpeg, "", true},
	}
	for _, tt := range tests {
		cmd := newFlagCmd()
		if tt.flag != "" {
			if err := cmd.Flags().Set("driver", tt.flag); err != nil {
				t.Fatal(err)
			}
		}
		got, err := getDriver(cmd, tt.fallback)
		if (err != nil) != tt.wantErr {
			t.Errorf("getDriver(%q, %q) error = %v, wantErr %v", tt.flag, tt.fallback, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("getDriver(%q, %q) = %q, want %q", tt.flag, tt.fallback, got, tt.want)
		}
	}
}
