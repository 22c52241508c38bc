package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/sauron/internal/constants"
)

// CameraConfig describes one capture device or stream.
type CameraConfig struct {
	ID     string `yaml:"id"`
	Device string `yaml:"device"` // /dev/video0, a dshow name, an RTSP URL or a file
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	FPS    int    `yaml:"fps"`
	Format string `yaml:"format"` // ffmpeg input format, e.g. v4l2
	Driver string `yaml:"driver"` // ffmpeg (default) or gocv
}

// Capture drivers.
const (
	DriverFFmpeg = "ffmpeg"
	DriverGocv   = "gocv"
)

type camerasFile struct {
	Cameras []CameraConfig `yaml:"cameras"`
}

// LoadCameras reads the camera list. The error wraps os.ErrNotExist when the
// file is missing.
func LoadCameras(path string) ([]CameraConfig, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("read cameras file: %w", err)
	}
	return ParseCameras(data)
}

// ParseCameras decodes and validates a camera list, filling in defaults.
func ParseCameras(data []byte) ([]CameraConfig, error) {
	var f camerasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse cameras file: %w", err)
	}

	seen := make(map[string]bool, len(f.Cameras))
	for i := range f.Cameras {
		c := &f.Cameras[i]
		if c.Device == "" {
			return nil, fmt.Errorf("camera %d: device is required", i)
		}
		if c.ID == "" {
			c.ID = fmt.Sprintf("cam%d", i)
		}
		switch c.Driver {
		case "", DriverFFmpeg, DriverGocv:
		default:
			return nil, fmt.Errorf("camera %s: unknown driver %q", c.ID, c.Driver)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("camera %d: duplicate id %q", i, c.ID)
		}
		seen[c.ID] = true
		c.applyDefaults()
	}
	return f.Cameras, nil
}

func (c *CameraConfig) applyDefaults() {
	if c.Width <= 0 || c.Height <= 0 {
		c.Width, c.Height = constants.DefaultFrameWidth, constants.DefaultFrameHeight
	}
	if c.FPS <= 0 {
		c.FPS = constants.DefaultFPS
	}
	if c.Driver == "" {
		c.Driver = DriverFFmpeg
	}
}

// CameraFromDevice builds a camera entry for a --camera flag value.
func CameraFromDevice(id, device, format string) CameraConfig {
	c := CameraConfig{ID: id, Device: device, Format: format}
	c.applyDefaults()
	return c
}
