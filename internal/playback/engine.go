package playback

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"MarketReplay/internal/model"
)

// ErrInvalidSpeed is returned for a speed multiplier that is not a positive finite number.
var ErrInvalidSpeed = errors.New("speed multiplier must be positive")

// DefaultTick is the cadence at 1x: one bar per second.
const DefaultTick = time.Second

// Speeds are the multipliers offered to the user. Any positive value is accepted by SetSpeed.
var Speeds = []float64{0.5, 1, 2, 4, 8}

const (
	minSpeed = 0.5
	maxSpeed = 8
)

// State is the playback state.
type State int

const (
	Stopped State = iota
	Playing
)

func (s State) String() string {
	if s == Playing {
		return "PLAYING"
	}
	return "STOPPED"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "PLAYING":
		*s = Playing
	case "STOPPED":
		*s = Stopped
	default:
		return fmt.Errorf("unknown playback state %q", text)
	}
	return nil
}

// Cursor is the playback position within the loaded series.
// Length 0 means there is no data and Index is meaningless.
type Cursor struct {
	Index  int     `json:"index"`
	Length int     `json:"length"`
	Speed  float64 `json:"speed"`
	State  State   `json:"state"`
}

// Playing reports whether the cursor is advancing.
func (c Cursor) Playing() bool { return c.State == Playing }

// Frame is what consumers render after each change.
// Visible is series[0..Index] and shares the engine's backing array; treat it as read-only.
type Frame struct {
	Cursor
	Current    model.Bar   `json:"current"`
	Previous   *model.Bar  `json:"previous,omitempty"`
	PriceDelta float64     `json:"priceDelta"`
	Visible    []model.Bar `json:"-"`
}

// Listener receives a frame after every cursor change. It runs outside the engine lock
// and may call back into the engine.
type Listener func(Frame)

// Engine advances a cursor over a series on a scheduler-driven cadence.
type Engine struct {
	mu        sync.Mutex
	sched     Scheduler
	base      time.Duration
	series    []model.Bar
	index     int
	speed     float64
	state     State
	timer     Timer
	gen       uint64
	listeners []Listener
}

// NewEngine creates a stopped engine with no data. A nil scheduler uses wall-clock time;
// a non-positive base uses DefaultTick.
func NewEngine(sched Scheduler, base time.Duration) *Engine {
	if sched == nil {
		sched = WallClock{}
	}
	if base <= 0 {
		base = DefaultTick
	}
	return &Engine{sched: sched, base: base, speed: 1}
}

// Subscribe registers fn for every subsequent frame.
func (e *Engine) Subscribe(fn Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Load replaces the series. The cursor returns to 0 and playback stops; any pending tick is discarded.
func (e *Engine) Load(series []model.Bar) {
	e.mu.Lock()
	e.cancelLocked()
	e.series = series
	e.index = 0
	e.state = Stopped
	e.emit()
}

// Play starts advancing. It does nothing without data or while already playing.
// From the last bar the next tick clamps and stops.
func (e *Engine) Play() {
	e.mu.Lock()
	if len(e.series) == 0 || e.state == Playing {
		e.mu.Unlock()
		return
	}
	e.state = Playing
	e.scheduleLocked()
	e.emit()
}

// Pause stops advancing and keeps the cursor where it is.
func (e *Engine) Pause() {
	e.mu.Lock()
	if e.state != Playing {
		e.mu.Unlock()
		return
	}
	e.cancelLocked()
	e.state = Stopped
	e.emit()
}

// Toggle flips between Play and Pause.
func (e *Engine) Toggle() {
	if e.Cursor().Playing() {
		e.Pause()
		return
	}
	e.Play()
}

// Seek moves the cursor to i, clamped into the series, and stops playback.
func (e *Engine) Seek(i int) {
	e.mu.Lock()
	e.cancelLocked()
	e.state = Stopped
	e.index = clamp(i, len(e.series))
	e.emit()
}

// Start seeks to the first bar.
func (e *Engine) Start() { e.Seek(0) }

// End seeks to the last bar.
func (e *Engine) End() { e.Seek(math.MaxInt) }

// SetSpeed changes the multiplier. A running playback is rescheduled at the new cadence at once.
func (e *Engine) SetSpeed(multiplier float64) error {
	if !(multiplier > 0) || math.IsInf(multiplier, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, multiplier)
	}
	e.mu.Lock()
	e.setSpeedLocked(multiplier)
	return nil
}

// Faster doubles the speed up to 8x and returns the new multiplier.
func (e *Engine) Faster() float64 {
	e.mu.Lock()
	s := math.Min(e.speed*2, maxSpeed)
	e.setSpeedLocked(s)
	return s
}

// Slower halves the speed down to 0.5x and returns the new multiplier.
func (e *Engine) Slower() float64 {
	e.mu.Lock()
	s := math.Max(e.speed/2, minSpeed)
	e.setSpeedLocked(s)
	return s
}

// setSpeedLocked expects e.mu held and releases it.
func (e *Engine) setSpeedLocked(multiplier float64) {
	e.speed = multiplier
	if e.state == Playing {
		e.cancelLocked()
		e.scheduleLocked()
	}
	e.emit()
}

// Interval returns the current wall-clock time between ticks.
func (e *Engine) Interval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.intervalLocked()
}

// Cursor returns the current position.
func (e *Engine) Cursor() Cursor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursorLocked()
}

// Frame returns the current frame, or false when no data is loaded.
func (e *Engine) Frame() (Frame, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.series) == 0 {
		return Frame{Cursor: e.cursorLocked()}, false
	}
	return e.frameLocked(), true
}

// Stop halts playback and discards the pending tick. The engine stays usable.
func (e *Engine) Stop() { e.Pause() }

func (e *Engine) tick(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.state != Playing {
		e.mu.Unlock()
		return
	}
	e.timer = nil
	e.index++
	if last := len(e.series) - 1; e.index >= last {
		e.index = last
		e.state = Stopped
		e.gen++
	} else {
		e.scheduleLocked()
	}
	e.emit()
}

func (e *Engine) scheduleLocked() {
	gen := e.gen
	e.timer = e.sched.AfterFunc(e.intervalLocked(), func() { e.tick(gen) })
}

// cancelLocked invalidates any scheduled tick, including one already racing to fire.
func (e *Engine) cancelLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.gen++
}

func (e *Engine) intervalLocked() time.Duration {
	return time.Duration(float64(e.base) / e.speed)
}

func (e *Engine) cursorLocked() Cursor {
	return Cursor{Index: e.index, Length: len(e.series), Speed: e.speed, State: e.state}
}

func (e *Engine) frameLocked() Frame {
	f := Frame{
		Cursor:  e.cursorLocked(),
		Current: e.series[e.index],
		Visible: e.series[:e.index+1],
	}
	if e.index > 0 {
		prev := e.series[e.index-1]
		f.Previous = &prev
		f.PriceDelta = f.Current.Close - prev.Close
	}
	return f
}

// emit releases the lock and notifies listeners with the frame taken under it.
func (e *Engine) emit() {
	var f Frame
	if len(e.series) > 0 {
		f = e.frameLocked()
	} else {
		f = Frame{Cursor: e.cursorLocked()}
	}
	listeners := append([]Listener(nil), e.listeners...)
	e.mu.Unlock()
	for _, fn := range listeners {
		fn(f)
	}
}

func clamp(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i > n-1 {
		return n - 1
	}
	return i
}
