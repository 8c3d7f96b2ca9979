package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/parking.report/internal/timeutil"
)

// ErrEmptyImage is returned when the camera produced no bytes.
var ErrEmptyImage = errors.New("camera returned an empty image")

// Image is one captured still.
type Image struct {
	ID         uuid.UUID
	SpaceID    int
	Data       []byte
	CapturedAt time.Time
}

// Capturer takes a still image. The camera itself is driven by an external
// program or device; implementations only collect the bytes.
type Capturer interface {
	Capture(ctx context.Context) (Image, error)
}

// RunFunc runs a command and returns its stdout.
type RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// CommandCapturer runs a still-capture command that writes a JPEG to stdout,
// for example libcamera-still -o -.
type CommandCapturer struct {
	Args    []string
	Timeout time.Duration
	Clock   timeutil.Clock
	Run     RunFunc
}

// NewCommandCapturer creates a capturer for the given command line.
func NewCommandCapturer(args []string, timeout time.Duration, clock timeutil.Clock) *CommandCapturer {
	return &CommandCapturer{Args: args, Timeout: timeout, Clock: clock, Run: runCommand}
}

func (c *CommandCapturer) Capture(ctx context.Context) (Image, error) {
	if len(c.Args) == 0 {
		return Image{}, errors.New("no capture command configured")
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	run := c.Run
	if run == nil {
		run = runCommand
	}
	data, err := run(ctx, c.Args[0], c.Args[1:]...)
	if err != nil {
		return Image{}, fmt.Errorf("capture command %s failed: %w", c.Args[0], err)
	}
	if len(data) == 0 {
		return Image{}, ErrEmptyImage
	}
	return Image{ID: uuid.New(), Data: data, CapturedAt: c.Clock.Now()}, nil
}

// FileCapturer returns the contents of a fixed file. It stands in for the
// camera in development mode.
type FileCapturer struct {
	Path  string
	Clock timeutil.Clock
}

func (c *FileCapturer) Capture(ctx context.Context) (Image, error) {
	if err := ctx.Err(); err != nil {
		return Image{}, err
	}
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return Image{}, fmt.Errorf("failed to read capture file: %w", err)
	}
	if len(data) == 0 {
		return Image{}, ErrEmptyImage
	}
	return Image{ID: uuid.New(), Data: data, CapturedAt: c.Clock.Now()}, nil
}
