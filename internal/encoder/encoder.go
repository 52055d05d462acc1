// Package encoder turns uploaded frame sequences into video files. The
// FFmpeg implementation shells out to the ffmpeg CLI and feeds its
// progress stream back to the render queue as heartbeats.
package encoder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/maauso/storyforge-api/internal/render"
)

// ErrNoFrames is returned when the job's frame directory is missing or empty.
var ErrNoFrames = errors.New("no frames found for job")

// Compile-time check that FFmpegEncoder implements render.Processor.
var _ render.Processor = (*FFmpegEncoder)(nil)

// FFmpegEncoder implements render.Processor using the ffmpeg CLI.
type FFmpegEncoder struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// workDir holds per-job frame directories and outputs.
	workDir string
}

// NewFFmpegEncoder creates an FFmpegEncoder rooted at workDir.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegEncoder(ffmpegPath, workDir string) *FFmpegEncoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegEncoder{ffmpegPath: ffmpegPath, workDir: workDir}
}

// FramesDir returns the directory frame uploads for a job should land in.
func (e *FFmpegEncoder) FramesDir(jobID string) string {
	return filepath.Join(e.workDir, jobID, "frames")
}

// Process encodes a job's frame sequence into a video and returns the
// output path. Progress parsed from ffmpeg's status stream is reported
// through the callback, which doubles as the job's heartbeat.
func (e *FFmpegEncoder) Process(ctx context.Context, job *render.Job, progress render.ProgressFunc) (string, error) {
	framesDir := e.FramesDir(job.ID)
	entries, err := os.ReadDir(framesDir)
	if err != nil || len(entries) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoFrames, framesDir)
	}

	output := filepath.Join(e.workDir, job.ID, outputName(job.Config))

	args := buildArgs(framesDir, output, job.Config)
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start ffmpeg: %w", err)
	}

	// ffmpeg's -progress stream emits key=value lines; every frame line
	// becomes a progress report and a heartbeat.
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if frame, ok := parseProgressLine(scanner.Text()); ok {
			progress(percentOf(frame, job.Config.TotalFrames), frame)
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("ffmpeg cancelled: %w", context.Cause(ctx))
		}
		return "", &FFmpegError{Args: args, Stderr: stderr.String(), Err: err}
	}

	progress(100, job.Config.TotalFrames)
	return output, nil
}

// buildArgs assembles the ffmpeg command line for a frame-sequence encode.
func buildArgs(framesDir, output string, cfg render.Config) []string {
	fps := cfg.FPS
	if fps <= 0 {
		fps = 30
	}
	args := []string{
		"-y",
		"-framerate", strconv.Itoa(fps),
		"-i", filepath.Join(framesDir, "%06d.png"),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		args = append(args, "-s", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height))
	}
	args = append(args,
		"-progress", "pipe:1",
		"-nostats",
		output,
	)
	return args
}

// outputName derives the output file name from the configured container.
func outputName(cfg render.Config) string {
	format := cfg.OutputFormat
	if format == "" {
		format = "mp4"
	}
	return "output." + format
}

// parseProgressLine extracts the frame counter from one line of ffmpeg's
// -progress stream.
func parseProgressLine(line string) (int, bool) {
	value, ok := strings.CutPrefix(strings.TrimSpace(line), "frame=")
	if !ok {
		return 0, false
	}
	frame, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, false
	}
	return frame, true
}

// percentOf converts a frame counter to a 0-100 percentage.
func percentOf(frame, total int) int {
	if total <= 0 {
		return 0
	}
	pct := frame * 100 / total
	if pct > 100 {
		pct = 100
	}
	return pct
}

// FFmpegError represents a failed ffmpeg run, including its stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
