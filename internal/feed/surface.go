package feed

import (
	"sync"

	"github.com/hearthward/playback-sentinel/internal/surface"
)

// remoteSurface projects the renderer's media element into the engine's
// surface binding. Reads serve the last report the renderer sent; controls
// go back out over the feed as control envelopes. Until the first report
// arrives the surface reads as paused with nothing buffered.
type remoteSurface struct {
	control func(WireControl)

	mu      sync.Mutex
	report  WireReport
	seen    bool
	subs    map[int]func()
	nextSub int
}

func newRemoteSurface(control func(WireControl)) *remoteSurface {
	return &remoteSurface{
		control: control,
		subs:    make(map[int]func()),
	}
}

// apply stores a fresh report and fires change subscribers.
func (r *remoteSurface) apply(rep WireReport) {
	r.mu.Lock()
	r.report = rep
	r.seen = true
	subs := make([]func(), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

// bind resolves the capability set the engine sees.
func (r *remoteSurface) bind() *surface.Surface {
	return &surface.Surface{
		Position: func() float64 {
			r.mu.Lock()
			defer r.mu.Unlock()
			return r.report.PositionSeconds
		},
		Duration: func() float64 {
			r.mu.Lock()
			defer r.mu.Unlock()
			return r.report.DurationSeconds
		},
		Paused: func() bool {
			r.mu.Lock()
			defer r.mu.Unlock()
			if !r.seen {
				return true
			}
			return r.report.Paused
		},
		Seeking: func() bool {
			r.mu.Lock()
			defer r.mu.Unlock()
			return r.report.Seeking
		},
		Ended: func() bool {
			r.mu.Lock()
			defer r.mu.Unlock()
			return r.report.Ended
		},
		Diagnostics: func() *surface.BufferDiagnostics {
			r.mu.Lock()
			defer r.mu.Unlock()
			if !r.seen {
				return nil
			}
			return &surface.BufferDiagnostics{
				BufferAheadSeconds:     r.report.BufferAheadSeconds,
				BufferBehindSeconds:    r.report.BufferBehindSeconds,
				BufferGapSeconds:       r.report.BufferGapSeconds,
				NextBufferStartSeconds: r.report.NextBufferStartSeconds,
				DroppedFrames:          r.report.DroppedFrames,
				TotalFrames:            r.report.TotalFrames,
				ReadyState:             surface.ReadyState(r.report.ReadyState),
				NetworkState:           surface.NetworkState(r.report.NetworkState),
			}
		},
		SeekTo: func(seconds float64) error {
			r.control(WireControl{Action: ControlActionSeek, Seconds: &seconds})
			return nil
		},
		Pause: func() error {
			r.control(WireControl{Action: ControlActionPause})
			return nil
		},
		Play: func() error {
			r.control(WireControl{Action: ControlActionPlay})
			return nil
		},
		HardReload: func(req surface.ReloadRequest) error {
			resume := req.SeekToIntentMS
			r.control(WireControl{
				Action:   ControlActionReload,
				Reason:   req.Reason,
				ResumeMS: &resume,
			})
			return nil
		},
		Subscribe: func(onChange func()) func() {
			r.mu.Lock()
			id := r.nextSub
			r.nextSub++
			r.subs[id] = onChange
			r.mu.Unlock()
			return func() {
				r.mu.Lock()
				delete(r.subs, id)
				r.mu.Unlock()
			}
		},
	}
}
