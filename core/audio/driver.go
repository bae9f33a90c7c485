package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"

	"Soundscape/logger"
)

// Driver pulls frames out of a Bus and advances its clock.
type Driver interface {
	Start(ctx context.Context) error
	Close() error
}

// NewDriver returns the driver named by kind: "speaker" or "null".
func NewDriver(kind string, bus *Bus) (Driver, error) {
	switch kind {
	case "speaker", "":
		return &speakerDriver{bus: bus, latency: 50 * time.Millisecond}, nil
	case "null":
		return &nullDriver{bus: bus, period: 20 * time.Millisecond}, nil
	default:
		return nil, fmt.Errorf("unknown audio driver %q", kind)
	}
}

type speakerDriver struct {
	bus     *Bus
	latency time.Duration
}

func (d *speakerDriver) Start(ctx context.Context) error {
	sr := d.bus.SampleRate()
	if err := speaker.Init(sr, sr.N(d.latency)); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}
	speaker.Play(d.bus)
	logger.Info("speaker output started",
		logger.Int("sampleRate", int(sr)),
		logger.Duration("latency", d.latency))
	return nil
}

func (d *speakerDriver) Close() error {
	speaker.Clear()
	speaker.Close()
	return nil
}

// nullDriver renders into a discarded buffer in real time, for hosts
// without a sound card.
type nullDriver struct {
	bus    *Bus
	period time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func (d *nullDriver) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.done = make(chan struct{})
	d.mu.Unlock()

	go d.run(ctx, d.done)
	logger.Info("null audio output started", logger.Duration("period", d.period))
	return nil
}

func (d *nullDriver) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(d.period)
	defer ticker.Stop()

	sr := d.bus.SampleRate()
	last := time.Now()
	var owed time.Duration
	scratch := make([][2]float64, sr.N(d.period))
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			owed += now.Sub(last)
			last = now
			n := sr.N(owed)
			if n <= 0 {
				continue
			}
			owed -= sr.D(n)
			for n > 0 {
				chunk := min(n, len(scratch))
				d.bus.Stream(scratch[:chunk])
				n -= chunk
			}
		}
	}
}

func (d *nullDriver) Close() error {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

var _ beep.Streamer = (*Bus)(nil)
