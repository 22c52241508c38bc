package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/sauron/internal/constants"
)

// FFmpegConfig configures the ffmpeg subprocess behind an FFmpegSource.
type FFmpegConfig struct {
	FFmpegPath  string // default "ffmpeg"
	FFprobePath string // default: "ffprobe" next to FFmpegPath
	Width       int    // output frame size; probed for files when zero
	Height      int
	FPS         int    // requested capture rate for devices
	Format      string // input format: v4l2, dshow, avfoundation, or empty to let ffmpeg guess
	Logger      *slog.Logger
}

func (c *FFmpegConfig) defaults() {
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.FFprobePath == "" {
		dir, base := filepath.Split(c.FFmpegPath)
		c.FFprobePath = dir + strings.Replace(base, "ffmpeg", "ffprobe", 1)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// FFmpegSource decodes a camera or video file through an ffmpeg subprocess
// writing raw RGB frames to a pipe. For cameras the subprocess is restarted
// on the next Read after it exits; for files its exit ends the source.
type FFmpegSource struct {
	id     string
	input  string
	camera bool
	cfg    FFmpegConfig
	frames int

	proc   atomic.Pointer[os.Process] // running subprocess, readable without mu
	closed atomic.Bool

	mu      sync.Mutex // held for the whole of a Read
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	stderr  *tailBuffer
	buf     []byte
	pending *Frame
	index   int
}

// OpenCamera starts capturing from a device and waits for the first frame.
func OpenCamera(ctx context.Context, id, device string, cfg FFmpegConfig) (*FFmpegSource, error) {
	cfg.defaults()
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = constants.DefaultFrameWidth, constants.DefaultFrameHeight
	}
	if cfg.FPS <= 0 {
		cfg.FPS = constants.DefaultFPS
	}

	s := &FFmpegSource{id: id, input: device, camera: true, cfg: cfg, frames: -1}
	if err := s.open(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenFile starts decoding a video file. The frame size is probed with
// ffprobe unless cfg sets it.
func OpenFile(ctx context.Context, id, path string, cfg FFmpegConfig) (*FFmpegSource, error) {
	cfg.defaults()
	if _, err := os.Stat(path); err != nil {
		return nil, &OpenError{Source: id, Err: err}
	}

	s := &FFmpegSource{id: id, input: path, cfg: cfg, frames: -1}
	info, err := probe(ctx, cfg.FFprobePath, path)
	if err != nil {
		if cfg.Width <= 0 || cfg.Height <= 0 {
			return nil, &OpenError{Source: id, Err: err}
		}
		cfg.Logger.Debug("ffprobe failed, using configured frame size", "source", id, "error", err)
	} else {
		if s.cfg.Width <= 0 || s.cfg.Height <= 0 {
			s.cfg.Width, s.cfg.Height = info.Width, info.Height
		}
		s.frames = info.Frames
	}

	if err := s.open(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// open starts the subprocess and reads the first frame so that a bad
// device or file fails here rather than in the capture loop.
func (s *FFmpegSource) open(ctx context.Context) error {
	if _, err := exec.LookPath(s.cfg.FFmpegPath); err != nil {
		return &OpenError{Source: s.id, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf = make([]byte, s.cfg.Width*s.cfg.Height*3)
	if err := s.start(); err != nil {
		return &OpenError{Source: s.id, Err: err}
	}

	frame, err := s.readFrame(ctx)
	switch {
	case err == nil:
		s.pending = frame
	case errors.Is(err, io.EOF) && !s.camera:
		// valid but empty video
	default:
		_ = s.stop(true)
		return &OpenError{Source: s.id, Err: err}
	}
	return nil
}

func (s *FFmpegSource) args() []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if s.camera {
		switch s.cfg.Format {
		case "dshow":
			args = append(args, "-f", "dshow", "-video_size", s.size(), "-framerate", strconv.Itoa(s.cfg.FPS), "-i", "video="+s.input)
		case "":
			args = append(args, "-i", s.input)
		default:
			args = append(args, "-f", s.cfg.Format, "-video_size", s.size(), "-framerate", strconv.Itoa(s.cfg.FPS), "-i", s.input)
		}
	} else {
		if s.cfg.Format != "" {
			args = append(args, "-f", s.cfg.Format)
		}
		args = append(args, "-i", s.input)
	}
	return append(args,
		"-an",
		"-vsync", "passthrough",
		"-vf", "scale="+strconv.Itoa(s.cfg.Width)+":"+strconv.Itoa(s.cfg.Height),
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	)
}

func (s *FFmpegSource) size() string {
	return fmt.Sprintf("%dx%d", s.cfg.Width, s.cfg.Height)
}

// start must be called with s.mu held.
func (s *FFmpegSource) start() error {
	cmd := exec.Command(s.cfg.FFmpegPath, s.args()...) //nolint:gosec // arguments come from trusted config
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	s.stderr = &tailBuffer{max: 4096}
	cmd.Stderr = s.stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	s.cmd = cmd
	s.stdout = stdout
	s.proc.Store(cmd.Process)
	s.cfg.Logger.Debug("ffmpeg started", "source", s.id, "input", s.input, "pid", cmd.Process.Pid)
	return nil
}

// stop reaps the subprocess, killing it first when kill is set.
// Must be called with s.mu held.
func (s *FFmpegSource) stop(kill bool) error {
	if s.cmd == nil {
		return nil
	}
	if kill {
		_ = s.cmd.Process.Kill()
	}
	err := s.cmd.Wait()
	s.cmd = nil
	s.stdout = nil
	s.proc.Store(nil)
	return err
}

// readFrame must be called with s.mu held. A blocked read is unblocked by
// killing the subprocess when ctx is cancelled.
func (s *FFmpegSource) readFrame(ctx context.Context) (*Frame, error) {
	cmd := s.cmd
	release := context.AfterFunc(ctx, func() { _ = cmd.Process.Kill() })
	_, err := io.ReadFull(s.stdout, s.buf)
	release()

	if err == nil {
		frame := &Frame{
			Index:     s.index,
			Timestamp: time.Now(),
			Image:     rgb24ToRGBA(s.buf, s.cfg.Width, s.cfg.Height),
			Source:    s.id,
		}
		s.index++
		return frame, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		_ = s.stop(true)
		return nil, ctxErr
	}
	if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: %v", ErrNoFrame, err)
	}

	waitErr := s.stop(false)
	if waitErr != nil {
		msg := strings.TrimSpace(s.stderr.String())
		if msg == "" {
			msg = waitErr.Error()
		}
		return nil, fmt.Errorf("%w: ffmpeg exited: %s", ErrNoFrame, msg)
	}
	if s.camera {
		return nil, fmt.Errorf("%w: ffmpeg exited", ErrNoFrame)
	}
	return nil, io.EOF
}

// Read implements Source.
func (s *FFmpegSource) Read(ctx context.Context) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return nil, ErrClosed
	}
	if s.pending != nil {
		frame := s.pending
		s.pending = nil
		return frame, nil
	}

	if s.cmd == nil {
		if !s.camera {
			return nil, io.EOF
		}
		if err := s.start(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoFrame, err)
		}
	}

	frame, err := s.readFrame(ctx)
	if err != nil && !s.camera && errors.Is(err, ErrNoFrame) && s.cmd == nil {
		// a file whose decoder failed mid-stream has nothing more to give
		s.cfg.Logger.Warn("video decoding stopped", "source", s.id, "error", err)
		return nil, io.EOF
	}
	return frame, err
}

// FrameCount implements FrameCounter.
func (s *FFmpegSource) FrameCount() int {
	return s.frames
}

// Close stops the subprocess. It is safe to call more than once.
func (s *FFmpegSource) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	// Kill first so a Read blocked on the pipe returns and releases mu.
	if p := s.proc.Load(); p != nil {
		_ = p.Kill()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	_ = s.stop(true)
	return nil
}

// ID implements Source.
func (s *FFmpegSource) ID() string {
	return s.id
}

func rgb24ToRGBA(buf []byte, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i, j := 0, 0; i+2 < len(buf) && j+3 < len(img.Pix); i, j = i+3, j+4 {
		img.Pix[j] = buf[i]
		img.Pix[j+1] = buf[i+1]
		img.Pix[j+2] = buf[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}

type videoInfo struct {
	Width  int
	Height int
	Frames int
}

// probe reads the first video stream's size and frame count with ffprobe.
func probe(ctx context.Context, ffprobe, path string) (videoInfo, error) {
	out, err := exec.CommandContext(ctx, ffprobe, //nolint:gosec // arguments come from trusted config
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,nb_frames",
		"-of", "json",
		path,
	).Output()
	if err != nil {
		return videoInfo{}, fmt.Errorf("ffprobe failed: %w", err)
	}

	var resp struct {
		Streams []struct {
			Width    int    `json:"width"`
			Height   int    `json:"height"`
			NbFrames string `json:"nb_frames"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &resp); err != nil {
		return videoInfo{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(resp.Streams) == 0 || resp.Streams[0].Width == 0 || resp.Streams[0].Height == 0 {
		return videoInfo{}, errors.New("no video stream")
	}

	st := resp.Streams[0]
	frames, err := strconv.Atoi(st.NbFrames)
	if err != nil {
		frames = -1
	}
	return videoInfo{Width: st.Width, Height: st.Height, Frames: frames}, nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if extra := t.buf.Len() - t.max; extra > 0 {
		t.buf.Next(extra)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

var (
	_ Source       = (*FFmpegSource)(nil)
	_ FrameCounter = (*FFmpegSource)(nil)
)
