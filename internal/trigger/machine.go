package trigger

import (
	"fmt"
	"sync"
	"time"
)

// State is the trigger lifecycle position.
type State int

const (
	// Idle means no reference frame has been taken.
	Idle State = iota
	// Armed means a reference frame exists and motion is being watched.
	Armed
	// Cooldown means the trigger fired and motion is still continuous.
	Cooldown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Cooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = Idle
	case "armed":
		*s = Armed
	case "cooldown":
		*s = Cooldown
	default:
		return fmt.Errorf("unknown trigger state %q", text)
	}
	return nil
}

// Outcome is the result of observing one sample.
type Outcome int

const (
	None Outcome = iota
	Fired
	Retriggered
)

// Capture reports whether the outcome requests a picture.
func (o Outcome) Capture() bool {
	return o == Fired || o == Retriggered
}

// Sample is one analyzed frame.
type Sample struct {
	At    time.Time
	Count int
}

// Config tunes a Machine.
type Config struct {
	FramesToTrigger      int
	RetriggerInterval    time.Duration
	TriggeredAreaPercent float64
	SquareSide           int
}

// Snapshot is a copy of the machine's externally visible state.
type Snapshot struct {
	State       State     `json:"state"`
	MinArea     float64   `json:"min_area"`
	LastTrigger time.Time `json:"last_trigger,omitzero"`
	Window      int       `json:"window"`
}

// Machine is safe for concurrent use; the analysis loop observes samples
// while the rebase timer and recenter requests reset it.
type Machine struct {
	mu          sync.Mutex
	window      *Window
	state       State
	lastTrigger time.Time
	retrigger   time.Duration
	areaPercent float64
	minArea     float64
}

// NewMachine returns an Idle machine.
func NewMachine(cfg Config) *Machine {
	m := &Machine{
		window:      NewWindow(cfg.FramesToTrigger),
		retrigger:   cfg.RetriggerInterval,
		areaPercent: cfg.TriggeredAreaPercent,
	}
	m.minArea = minArea(cfg.TriggeredAreaPercent, cfg.SquareSide)
	return m
}

func minArea(percent float64, side int) float64 {
	return percent * float64(side) * float64(side)
}

// Arm moves Idle to Armed once a reference frame has been taken.
func (m *Machine) Arm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Idle {
		m.state = Armed
	}
}

// Reset forces Idle and clears the window. The next frame becomes the new reference.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Idle
	m.window.Reset()
}

// Resize recomputes the minimum contour area for a new region side length.
func (m *Machine) Resize(side int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.minArea = minArea(m.areaPercent, side)
}

// MinArea is the smallest contour area that counts as motion.
func (m *Machine) MinArea() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.minArea
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:       m.state,
		MinArea:     m.minArea,
		LastTrigger: m.lastTrigger,
		Window:      m.window.Len(),
	}
}

// Observe evaluates one sample. Samples taken while Idle are ignored.
func (m *Machine) Observe(s Sample) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Idle {
		return None
	}

	m.window.Push(s.Count > 0)
	continuous := m.window.Saturated()

	switch m.state {
	case Armed:
		if continuous {
			m.state = Cooldown
			m.lastTrigger = s.At
			return Fired
		}
	case Cooldown:
		if !continuous {
			m.state = Armed
			return None
		}
		if s.At.Sub(m.lastTrigger) > m.retrigger {
			m.lastTrigger = s.At
			return Retriggered
		}
	}
	return None
}
