package timer

import "time"

// Options configures an Engine.
type Options struct {
	// Clock defaults to SystemClock.
	Clock Clock
	// Frames is required; it drives the tick cycle.
	Frames FrameScheduler
	// Chime is optional. Without it completions report Chimed=false.
	Chime Chimer
	// Default is the initially selected duration. Nil means DefaultDuration;
	// negative values clamp to zero.
	Default *time.Duration
	// OnTick receives every rendered frame.
	OnTick func(Tick)
	// OnComplete fires once per finished session.
	OnComplete func(Completion)
}

// Engine is a deadline-based countdown state machine.
type Engine struct {
	clock  Clock
	frames FrameScheduler
	chime  Chimer

	onTick     func(Tick)
	onComplete func(Completion)

	state     State
	duration  time.Duration
	remaining time.Duration
	target    time.Time
	selected  time.Duration

	frame Handle
}

// New creates an idle engine. It panics if opts.Frames is nil.
func New(opts Options) *Engine {
	if opts.Frames == nil {
		panic("timer: nil FrameScheduler")
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	def := DefaultDuration
	if opts.Default != nil {
		def = ClampDuration(*opts.Default)
	}
	return &Engine{
		clock:      opts.Clock,
		frames:     opts.Frames,
		chime:      opts.Chime,
		onTick:     opts.OnTick,
		onComplete: opts.OnComplete,
		state:      StateIdle,
		duration:   def,
		remaining:  def,
		selected:   def,
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State { return e.state }

// Selected returns the duration the next Start will use.
func (e *Engine) Selected() time.Duration { return e.selected }

// Remaining returns the time left in the current session. Outside a session
// it returns the selected duration.
func (e *Engine) Remaining() time.Duration {
	switch e.state {
	case StateRunning:
		return e.left(e.clock.Now())
	case StatePaused:
		return e.remaining
	case StateCompleted:
		return 0
	default:
		return e.selected
	}
}

// Snapshot returns a copy of the engine state.
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		State:     e.state,
		Duration:  e.duration,
		Remaining: e.Remaining(),
		Selected:  e.selected,
	}
	if e.state == StateRunning {
		s.Target = e.target
	}
	return s
}

// SetSelectedDuration changes the default for the next Start or Reset
// without starting. Outside a session the new value is rendered.
func (e *Engine) SetSelectedDuration(d time.Duration) {
	e.selected = ClampDuration(d)
	if !e.inSession() {
		e.renderIdle()
	}
}

// Start begins a session with the selected duration. It is a no-op while a
// session is running or paused.
func (e *Engine) Start() {
	if e.inSession() {
		return
	}
	e.begin()
}

// StartWith selects d and starts a session with it. It is a no-op while a
// session is running or paused; the selection is left untouched then.
func (e *Engine) StartWith(d time.Duration) {
	if e.inSession() {
		return
	}
	e.selected = ClampDuration(d)
	e.begin()
}

// Pause freezes the remaining time. Only valid while running.
func (e *Engine) Pause() {
	if e.state != StateRunning {
		return
	}
	e.cancelFrame()
	e.remaining = e.left(e.clock.Now())
	e.target = time.Time{}
	e.state = StatePaused
	e.render(e.remaining, e.duration)
}

// Resume moves the deadline forward by the paused interval. Only valid
// while paused.
func (e *Engine) Resume() {
	if e.state != StatePaused {
		return
	}
	e.target = e.clock.Now().Add(e.remaining)
	e.state = StateRunning
	e.loop()
}

// Reset stops any session and shows the selected duration again.
func (e *Engine) Reset() {
	e.cancelFrame()
	e.state = StateIdle
	e.target = time.Time{}
	e.duration = e.selected
	e.remaining = e.selected
	e.renderIdle()
}

// Refresh renders the running countdown from the absolute deadline. Hosts
// call it when the display becomes visible again after frames may have been
// throttled or skipped.
func (e *Engine) Refresh() {
	if e.state != StateRunning {
		return
	}
	e.render(e.left(e.clock.Now()), e.duration)
}

// TestTone plays the completion chime on demand.
func (e *Engine) TestTone() bool {
	if e.chime == nil {
		return false
	}
	return e.chime.Chime()
}

func (e *Engine) begin() {
	e.cancelFrame()
	e.duration = e.selected
	e.remaining = 0
	e.target = e.clock.Now().Add(e.duration)
	e.state = StateRunning
	e.loop()
}

// loop is one frame of the tick cycle.
func (e *Engine) loop() {
	e.frame = nil
	if e.state != StateRunning {
		return
	}
	now := e.clock.Now()
	left := e.left(now)
	e.render(left, e.duration)
	if e.state != StateRunning {
		// OnTick changed the state.
		return
	}
	if left <= 0 {
		e.complete(now)
		return
	}
	e.frame = e.frames.RequestFrame(e.loop)
}

func (e *Engine) complete(now time.Time) {
	e.cancelFrame()
	e.state = StateCompleted
	e.target = time.Time{}
	c := Completion{Duration: e.duration, At: now}
	if e.chime != nil {
		c.Chimed = e.chime.Chime()
	}
	if e.onComplete != nil {
		e.onComplete(c)
	}
}

func (e *Engine) left(now time.Time) time.Duration {
	left := e.target.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

func (e *Engine) render(left, total time.Duration) {
	if e.onTick != nil {
		e.onTick(newTick(left, total, e.state))
	}
}

// renderIdle shows the selected duration with an empty progress ring.
func (e *Engine) renderIdle() {
	if e.onTick == nil {
		return
	}
	t := newTick(e.selected, e.selected, e.state)
	t.Fraction, t.Degrees = 0, 0
	e.onTick(t)
}

func (e *Engine) cancelFrame() {
	if e.frame != nil {
		e.frame.Cancel()
		e.frame = nil
	}
}

func (e *Engine) inSession() bool {
	return e.state == StateRunning || e.state == StatePaused
}
