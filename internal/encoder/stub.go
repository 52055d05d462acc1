package encoder

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/maauso/storyforge-api/internal/render"
)

// Compile-time check that Stub implements render.Processor.
var _ render.Processor = (*Stub)(nil)

// Stub is a render.Processor for tests and local development: it reports
// progress in four steps and writes a placeholder output file.
type Stub struct {
	// WorkDir is where placeholder outputs are written.
	WorkDir string
	// Delay is the total simulated encode time.
	Delay time.Duration
	// Err, when set, fails every attempt.
	Err error
}

// Process simulates an encode honoring ctx cancellation.
func (s *Stub) Process(ctx context.Context, job *render.Job, progress render.ProgressFunc) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}

	steps := 4
	for i := 1; i <= steps; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.Delay / time.Duration(steps)):
		}
		frame := job.Config.TotalFrames * i / steps
		progress(i*100/steps, frame)
	}

	dir := filepath.Join(s.WorkDir, job.ID)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", err
	}
	output := filepath.Join(dir, outputName(job.Config))
	if err := os.WriteFile(output, []byte("stub video"), 0600); err != nil {
		return "", err
	}
	return output, nil
}
