package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/dsmmcken/vdo-samurai-sub000/internal/config"
)

const (
	stderrTailBytes = 4 << 10
	stopGrace       = 5 * time.Second
	startGrace      = 200 * time.Millisecond
)

// ffmpegBin is the capture binary; tests point it at stand-ins.
var ffmpegBin = "ffmpeg"

// FFmpegSource runs one ffmpeg process that encodes a device into a
// streamable container on stdout.
//
// Flow:
//  1. Start spawns ffmpeg with the prepared args and launches the read loop.
//  2. The read loop slices stdout into chunks and hands them to Next.
//  3. Stop signals the process to finish; the loop drains the pipe, waits
//     for exit, and closes the chunk channel.
type FFmpegSource struct {
	label      string
	container  string
	args       []string
	chunkBytes int

	cmd       *exec.Cmd
	stdout    io.ReadCloser
	stderr    *tailWriter
	cancel    context.CancelFunc
	chunks    chan []byte
	loopDone  chan struct{}
	readErr   error
	delivered atomic.Bool
	stopping  atomic.Bool
}

// NewCamera captures a camera device together with a microphone so the take
// carries its own audio track. Empty devices pick the platform defaults.
func NewCamera(cfg config.Config, device, audioDevice string) *FFmpegSource {
	args := cameraInputArgs(runtime.GOOS, device, audioDevice, cfg)
	args = append(args, videoEncodeArgs(cfg)...)
	args = append(args, audioEncodeArgs(cfg)...)
	return newSource("camera", args, cfg)
}

// NewMicrophone captures an audio device as audio-only matroska.
func NewMicrophone(cfg config.Config, device string) *FFmpegSource {
	args := micInputArgs(runtime.GOOS, device)
	args = append(args, audioEncodeArgs(cfg)...)
	args = append(args, "-vn")
	return newSource("mic", args, cfg)
}

// NewScreen captures a display as video-only matroska. System audio is not
// captured; the compositor takes audio from the camera slot.
func NewScreen(cfg config.Config, display string) *FFmpegSource {
	args := screenInputArgs(runtime.GOOS, display, cfg)
	args = append(args, videoEncodeArgs(cfg)...)
	args = append(args, "-an")
	return newSource("screen", args, cfg)
}

// NewTestPattern synthesizes media without touching hardware: a moving test
// card, with a 440 Hz tone for "camera" and the tone alone for "mic". Used
// by record --test and the doctor smoke check. Inputs are paced with -re so
// the synthetic take runs at wall-clock speed like a real device.
func NewTestPattern(cfg config.Config, label string) *FFmpegSource {
	testCard := fmt.Sprintf("testsrc2=size=%dx%d:rate=%d", cfg.CanvasWidth, cfg.CanvasHeight, cfg.FrameRate)
	tone := fmt.Sprintf("sine=frequency=440:sample_rate=%d", cfg.AudioSampleRate)

	var args []string
	switch label {
	case "mic":
		args = []string{"-re", "-f", "lavfi", "-i", tone}
		args = append(args, audioEncodeArgs(cfg)...)
		args = append(args, "-vn")
	case "camera":
		args = []string{"-re", "-f", "lavfi", "-i", testCard, "-re", "-f", "lavfi", "-i", tone}
		args = append(args, videoEncodeArgs(cfg)...)
		args = append(args, audioEncodeArgs(cfg)...)
	default:
		args = []string{"-re", "-f", "lavfi", "-i", testCard}
		args = append(args, videoEncodeArgs(cfg)...)
		args = append(args, "-an")
	}
	return newSource(label, args, cfg)
}

func newSource(label string, args []string, cfg config.Config) *FFmpegSource {
	full := []string{"-hide_banner", "-nostdin", "-loglevel", "error"}
	full = append(full, args...)
	full = append(full, "-f", "matroska", "pipe:1")
	return &FFmpegSource{
		label:      label,
		container:  "mkv",
		args:       full,
		chunkBytes: cfg.ChunkBytes,
		stderr:     newTailWriter(stderrTailBytes),
	}
}

func (s *FFmpegSource) Label() string     { return s.label }
func (s *FFmpegSource) Container() string { return s.container }

// Args exposes the full ffmpeg argument list for logging.
func (s *FFmpegSource) Args() []string { return s.args }

// Start spawns the capture process. It fails with *DeviceUnavailableError
// when ffmpeg is missing, cannot be spawned, or rejects the device within
// the startup grace window. A device that dies later, after producing
// output, surfaces on Next instead.
func (s *FFmpegSource) Start(ctx context.Context) error {
	if _, err := exec.LookPath(ffmpegBin); err != nil {
		return &DeviceUnavailableError{Label: s.label, Detail: "ffmpeg not found in PATH", Err: err}
	}

	cctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(cctx, ffmpegBin, s.args...)
	cmd.Stderr = s.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return &DeviceUnavailableError{Label: s.label, Err: err}
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return &DeviceUnavailableError{Label: s.label, Err: err}
	}

	s.cmd = cmd
	s.stdout = stdout
	s.cancel = cancel
	s.chunks = make(chan []byte, 8)
	s.loopDone = make(chan struct{})
	go s.readLoop()

	// A rejected device kills the process almost immediately. Holding Start
	// open for the grace window turns that into an error here instead of an
	// empty take later.
	select {
	case <-s.loopDone:
		if !s.delivered.Load() {
			cancel()
			if s.readErr != nil {
				return s.readErr
			}
			return &DeviceUnavailableError{Label: s.label, Detail: s.stderr.Tail()}
		}
	case <-time.After(startGrace):
	}
	return nil
}

// Next returns the next chunk, blocking until one is available or the
// stream ends. After the stream ends it keeps returning the same result.
func (s *FFmpegSource) Next() ([]byte, error) {
	chunk, ok := <-s.chunks
	if !ok {
		if s.readErr != nil {
			return nil, s.readErr
		}
		return nil, io.EOF
	}
	return chunk, nil
}

// Stop signals ffmpeg to finish the container and waits for the read loop
// to drain. If the process ignores the signal past the grace window it is
// killed; the chunks written so far remain valid matroska.
func (s *FFmpegSource) Stop() error {
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	s.stopping.Store(true)
	_ = s.cmd.Process.Signal(os.Interrupt)

	select {
	case <-s.loopDone:
	case <-time.After(stopGrace):
		s.cancel()
		<-s.loopDone
	}
	s.cancel()
	return nil
}

func (s *FFmpegSource) readLoop() {
	defer close(s.loopDone)
	defer close(s.chunks)

	for {
		buf := make([]byte, s.chunkBytes)
		n, err := io.ReadFull(s.stdout, buf)
		if n > 0 {
			s.delivered.Store(true)
			s.chunks <- buf[:n]
		}
		if err == nil {
			continue
		}

		waitErr := s.cmd.Wait()
		if err != io.EOF && err != io.ErrUnexpectedEOF {
			s.readErr = &CaptureError{Label: s.label, Detail: s.stderr.Tail(), Err: err}
			return
		}
		if waitErr != nil && !s.stopping.Load() {
			// ffmpeg also exits nonzero on SIGINT, so failures only count
			// when nobody asked it to stop.
			if !s.delivered.Load() {
				s.readErr = &DeviceUnavailableError{Label: s.label, Detail: s.stderr.Tail(), Err: waitErr}
			} else {
				s.readErr = &CaptureError{Label: s.label, Detail: s.stderr.Tail(), Err: waitErr}
			}
		}
		return
	}
}

// cameraInputArgs opens the camera and the microphone in one process. On
// macOS avfoundation takes both as a single "video:audio" input; elsewhere
// they are separate demuxers and ffmpeg's default stream selection pairs
// them up.
func cameraInputArgs(goos, device, audioDevice string, cfg config.Config) []string {
	fr := strconv.Itoa(cfg.FrameRate)
	switch goos {
	case "darwin":
		if device == "" {
			device = "0"
		}
		if audioDevice == "" {
			audioDevice = "default"
		}
		return []string{"-f", "avfoundation", "-framerate", fr, "-i", device + ":" + audioDevice}
	default:
		if device == "" {
			device = "/dev/video0"
		}
		if audioDevice == "" {
			audioDevice = "default"
		}
		return []string{
			"-f", "v4l2", "-framerate", fr, "-i", device,
			"-f", "pulse", "-i", audioDevice,
		}
	}
}

func micInputArgs(goos, device string) []string {
	if device == "" {
		device = "default"
	}
	switch goos {
	case "darwin":
		return []string{"-f", "avfoundation", "-i", "none:" + device}
	default:
		return []string{"-f", "pulse", "-i", device}
	}
}

func screenInputArgs(goos, display string, cfg config.Config) []string {
	fr := strconv.Itoa(cfg.FrameRate)
	switch goos {
	case "darwin":
		if display == "" {
			display = "Capture screen 0"
		}
		return []string{"-f", "avfoundation", "-capture_cursor", "1", "-framerate", fr, "-i", display + ":none"}
	default:
		if display == "" {
			display = ":0.0"
		}
		return []string{"-f", "x11grab", "-framerate", fr, "-i", display}
	}
}

func videoEncodeArgs(cfg config.Config) []string {
	return []string{
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", strconv.Itoa(cfg.VideoCRF),
		"-g", strconv.Itoa(cfg.FrameRate * 2),
		"-pix_fmt", "yuv420p",
	}
}

func audioEncodeArgs(cfg config.Config) []string {
	return []string{
		"-c:a", "libopus",
		"-b:a", cfg.AudioBitrate,
		"-ar", strconv.Itoa(cfg.AudioSampleRate),
		"-ac", strconv.Itoa(cfg.AudioChannels),
	}
}
