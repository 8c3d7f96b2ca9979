package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/parking.report/internal/monitoring"
)

// ErrBusy is returned by Request when a capture is already queued.
var ErrBusy = errors.New("capture already queued")

// Stats summarises dispatcher activity.
type Stats struct {
	Requested int
	Completed int
	Failed    int
	Dropped   int
	LastID    string
	LastAt    time.Time
	LastError string
}

// Status is a one-line camera health summary.
func (s Stats) Status() string {
	switch {
	case s.LastError != "":
		return "error: " + s.LastError
	case s.Completed > 0:
		return "ok"
	default:
		return "idle"
	}
}

type request struct {
	spaceID int
}

// Dispatcher runs capture and upload on one worker goroutine so the sensor
// loop never waits on the camera. At most one request is queued behind the
// one in flight.
type Dispatcher struct {
	capturer Capturer
	uploader Uploader
	queue    chan request
	done     chan struct{}

	// OnResult, when set before Start, is called on the worker after each
	// request completes.
	OnResult func(Image, Ack, error)

	mu    sync.Mutex
	stats Stats
}

// NewDispatcher creates a dispatcher. A nil uploader captures without
// uploading.
func NewDispatcher(c Capturer, u Uploader) *Dispatcher {
	return &Dispatcher{
		capturer: c,
		uploader: u,
		queue:    make(chan request, 1),
		done:     make(chan struct{}),
	}
}

// Start launches the worker. It exits when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	go d.run(ctx)
}

// Done is closed once the worker has exited.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }

// Request queues a capture for spaceID without blocking.
func (d *Dispatcher) Request(spaceID int) error {
	d.mu.Lock()
	d.stats.Requested++
	d.mu.Unlock()

	select {
	case d.queue <- request{spaceID: spaceID}:
		return nil
	default:
		d.mu.Lock()
		d.stats.Dropped++
		d.mu.Unlock()
		return ErrBusy
	}
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.queue:
			d.handle(ctx, req)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, req request) {
	img, ack, err := d.process(ctx, req)

	d.mu.Lock()
	if err != nil {
		d.stats.Failed++
		d.stats.LastError = err.Error()
	} else {
		d.stats.Completed++
		d.stats.LastError = ""
		d.stats.LastID = img.ID.String()
		d.stats.LastAt = img.CapturedAt
	}
	d.mu.Unlock()

	if err != nil {
		monitoring.Logf("❌ capture for space %d failed: %v", req.spaceID, err)
	} else if ack.Filename != "" {
		monitoring.Logf("📸 capture %s for space %d stored as %s", img.ID, req.spaceID, ack.Filename)
	} else {
		monitoring.Logf("📸 capture %s for space %d (%d bytes)", img.ID, req.spaceID, len(img.Data))
	}
	if d.OnResult != nil {
		d.OnResult(img, ack, err)
	}
}

func (d *Dispatcher) process(ctx context.Context, req request) (Image, Ack, error) {
	img, err := d.capturer.Capture(ctx)
	if err != nil {
		return Image{}, Ack{}, err
	}
	img.SpaceID = req.spaceID
	if d.uploader == nil {
		return img, Ack{}, nil
	}
	ack, err := d.uploader.Upload(ctx, img)
	return img, ack, err
}
