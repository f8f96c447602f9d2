// Package surface defines the binding to the external playback surface.
//
// The media engine itself (decoder, adaptive-bitrate client) lives outside
// this repository. The engine only sees a Surface: a set of optional
// capabilities resolved once at bind time. Callers nil-check through the
// accessor methods instead of probing at every call site.
package surface

// ReadyState mirrors the surface's decode-readiness ladder.
type ReadyState int

const (
	// ReadyNothing means no media data is available.
	ReadyNothing ReadyState = iota

	// ReadyMetadata means duration and dimensions are known.
	ReadyMetadata

	// ReadyCurrentData means data for the current position exists.
	ReadyCurrentData

	// ReadyFutureData means at least a little data past the position exists.
	ReadyFutureData

	// ReadyEnoughData means playback can proceed uninterrupted.
	ReadyEnoughData
)

// String returns a human-readable name for the ready state.
func (r ReadyState) String() string {
	switch r {
	case ReadyNothing:
		return "nothing"
	case ReadyMetadata:
		return "metadata"
	case ReadyCurrentData:
		return "current-data"
	case ReadyFutureData:
		return "future-data"
	case ReadyEnoughData:
		return "enough-data"
	default:
		return "unknown"
	}
}

// NetworkState mirrors the surface's network activity state.
type NetworkState int

const (
	// NetworkEmpty means no source has been attached.
	NetworkEmpty NetworkState = iota

	// NetworkIdle means the source is attached but not loading.
	NetworkIdle

	// NetworkLoading means the surface is actively downloading.
	NetworkLoading

	// NetworkNoSource means no usable source was found.
	NetworkNoSource
)

// String returns a human-readable name for the network state.
func (n NetworkState) String() string {
	switch n {
	case NetworkEmpty:
		return "empty"
	case NetworkIdle:
		return "idle"
	case NetworkLoading:
		return "loading"
	case NetworkNoSource:
		return "no-source"
	default:
		return "unknown"
	}
}

// BufferDiagnostics is a read-only view of buffer and frame health, derived
// from the surface on each poll. A snapshot may be one polling tick stale.
type BufferDiagnostics struct {
	BufferAheadSeconds     float64
	BufferBehindSeconds    float64
	BufferGapSeconds       float64
	NextBufferStartSeconds float64
	DroppedFrames          int64
	TotalFrames            int64
	ReadyState             ReadyState
	NetworkState           NetworkState
}

// ReloadRequest asks the surface to tear down and rebuild the stream.
type ReloadRequest struct {
	// Reason names the trigger, e.g. "stall", "startup-deadline-exceeded",
	// "segment-skip-ahead", "seek-while-stalled".
	Reason string

	// SeekToIntentMS is the position to resume at after reload, in
	// milliseconds. Negative means resume wherever the surface lands.
	SeekToIntentMS int64
}

// Surface is the capability set of one bound playback surface. Any member may
// be nil; the engine treats a missing capability as "unavailable right now",
// not as an error. The members are resolved once when the surface is bound.
type Surface struct {
	Position    func() float64
	Duration    func() float64
	Paused      func() bool
	Seeking     func() bool
	Ended       func() bool
	Diagnostics func() *BufferDiagnostics

	SeekTo     func(seconds float64) error
	Pause      func() error
	Play       func() error
	HardReload func(req ReloadRequest) error

	// Subscribe registers a change-notification callback and returns an
	// unsubscribe function. Surfaces without native notifications leave this
	// nil and the reporter falls back to pure polling.
	Subscribe func(onChange func()) (unsubscribe func())
}

// ReadPosition returns the playback position, or false if unavailable.
func (s *Surface) ReadPosition() (float64, bool) {
	if s == nil || s.Position == nil {
		return 0, false
	}
	return s.Position(), true
}

// ReadDuration returns the media duration, or false if unavailable.
func (s *Surface) ReadDuration() (float64, bool) {
	if s == nil || s.Duration == nil {
		return 0, false
	}
	return s.Duration(), true
}

// ReadPaused returns the paused flag, defaulting to true when unavailable:
// a surface we cannot observe is not making progress.
func (s *Surface) ReadPaused() bool {
	if s == nil || s.Paused == nil {
		return true
	}
	return s.Paused()
}

// ReadSeeking returns the seeking flag, defaulting to false.
func (s *Surface) ReadSeeking() bool {
	if s == nil || s.Seeking == nil {
		return false
	}
	return s.Seeking()
}

// ReadEnded returns the ended flag, defaulting to false.
func (s *Surface) ReadEnded() bool {
	if s == nil || s.Ended == nil {
		return false
	}
	return s.Ended()
}

// ReadDiagnostics returns buffer diagnostics, or nil if unavailable.
func (s *Surface) ReadDiagnostics() *BufferDiagnostics {
	if s == nil || s.Diagnostics == nil {
		return nil
	}
	return s.Diagnostics()
}

// CanSeek reports whether the surface accepts direct seeks.
func (s *Surface) CanSeek() bool {
	return s != nil && s.SeekTo != nil
}

// CanReload reports whether the surface supports hard reloads.
func (s *Surface) CanReload() bool {
	return s != nil && s.HardReload != nil
}
