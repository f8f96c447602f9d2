package surface

import "sync"

// Fake is a scripted in-memory playback surface for tests. Fields are set
// directly or through the helper methods; every mutation is recorded so tests
// can assert on the calls the engine made.
type Fake struct {
	mu sync.Mutex

	position float64
	duration float64
	paused   bool
	seeking  bool
	ended    bool
	diag     *BufferDiagnostics

	seeks      []float64
	reloads    []ReloadRequest
	pauseCalls int
	playCalls  int

	listeners []func()

	// FailSeek makes SeekTo return ErrFake when set.
	FailSeek bool
}

// NewFake returns a paused fake surface at position zero.
func NewFake() *Fake {
	return &Fake{paused: true, duration: 3600}
}

// Bind returns a Surface exposing every capability of the fake.
func (f *Fake) Bind() *Surface {
	return &Surface{
		Position:    f.Position,
		Duration:    f.DurationSeconds,
		Paused:      f.IsPaused,
		Seeking:     f.IsSeeking,
		Ended:       f.IsEnded,
		Diagnostics: f.diagnostics,
		SeekTo:      f.seekTo,
		Pause:       f.pause,
		Play:        f.play,
		HardReload:  f.hardReload,
		Subscribe:   f.subscribe,
	}
}

// BindPollOnly returns a Surface without native change notifications.
func (f *Fake) BindPollOnly() *Surface {
	s := f.Bind()
	s.Subscribe = nil
	return s
}

// Position returns the scripted playback position.
func (f *Fake) Position() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position
}

// DurationSeconds returns the scripted media duration.
func (f *Fake) DurationSeconds() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duration
}

// IsPaused returns the scripted paused flag.
func (f *Fake) IsPaused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

// IsSeeking returns the scripted seeking flag.
func (f *Fake) IsSeeking() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seeking
}

// IsEnded returns the scripted ended flag.
func (f *Fake) IsEnded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ended
}

// SetPosition scripts the playback position and notifies listeners.
func (f *Fake) SetPosition(seconds float64) {
	f.mu.Lock()
	f.position = seconds
	f.mu.Unlock()
	f.notify()
}

// SetDuration scripts the media duration.
func (f *Fake) SetDuration(seconds float64) {
	f.mu.Lock()
	f.duration = seconds
	f.mu.Unlock()
}

// SetPaused scripts the paused flag and notifies listeners.
func (f *Fake) SetPaused(paused bool) {
	f.mu.Lock()
	f.paused = paused
	f.mu.Unlock()
	f.notify()
}

// SetSeeking scripts the seeking flag and notifies listeners.
func (f *Fake) SetSeeking(seeking bool) {
	f.mu.Lock()
	f.seeking = seeking
	f.mu.Unlock()
	f.notify()
}

// SetEnded scripts the ended flag.
func (f *Fake) SetEnded(ended bool) {
	f.mu.Lock()
	f.ended = ended
	f.mu.Unlock()
	f.notify()
}

// SetDiagnostics scripts the buffer diagnostics snapshot.
func (f *Fake) SetDiagnostics(d *BufferDiagnostics) {
	f.mu.Lock()
	f.diag = d
	f.mu.Unlock()
}

// Seeks returns every target passed to SeekTo, oldest first.
func (f *Fake) Seeks() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]float64, len(f.seeks))
	copy(out, f.seeks)
	return out
}

// Reloads returns every hard reload request, oldest first.
func (f *Fake) Reloads() []ReloadRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ReloadRequest, len(f.reloads))
	copy(out, f.reloads)
	return out
}

// PauseCalls returns the number of Pause invocations.
func (f *Fake) PauseCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pauseCalls
}

// PlayCalls returns the number of Play invocations.
func (f *Fake) PlayCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playCalls
}

func (f *Fake) diagnostics() *BufferDiagnostics {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.diag == nil {
		return nil
	}
	d := *f.diag
	return &d
}

func (f *Fake) seekTo(seconds float64) error {
	f.mu.Lock()
	if f.FailSeek {
		f.mu.Unlock()
		return ErrFake
	}
	f.seeks = append(f.seeks, seconds)
	f.position = seconds
	f.mu.Unlock()
	f.notify()
	return nil
}

func (f *Fake) pause() error {
	f.mu.Lock()
	f.pauseCalls++
	f.paused = true
	f.mu.Unlock()
	f.notify()
	return nil
}

func (f *Fake) play() error {
	f.mu.Lock()
	f.playCalls++
	f.paused = false
	f.mu.Unlock()
	f.notify()
	return nil
}

func (f *Fake) hardReload(req ReloadRequest) error {
	f.mu.Lock()
	f.reloads = append(f.reloads, req)
	f.mu.Unlock()
	return nil
}

func (f *Fake) subscribe(onChange func()) func() {
	f.mu.Lock()
	f.listeners = append(f.listeners, onChange)
	idx := len(f.listeners) - 1
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.listeners[idx] = nil
		f.mu.Unlock()
	}
}

func (f *Fake) notify() {
	f.mu.Lock()
	ls := make([]func(), len(f.listeners))
	copy(ls, f.listeners)
	f.mu.Unlock()
	for _, l := range ls {
		if l != nil {
			l()
		}
	}
}
