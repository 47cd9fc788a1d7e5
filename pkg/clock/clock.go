// pkg/clock/clock.go - scoped clock boost for long-running installs.

package clock

import (
	"errors"
	"fmt"
	"sync"

	"github.com/windowsadmins/cimianshop/pkg/logging"
)

// Domain identifies one clock that can be raised.
type Domain int

const (
	CPU Domain = iota
	GPU
	Memory
)

func (d Domain) String() string {
	switch d {
	case CPU:
		return "cpu"
	case GPU:
		return "gpu"
	case Memory:
		return "memory"
	default:
		return fmt.Sprintf("domain(%d)", int(d))
	}
}

// Setting is a target frequency for one domain.
type Setting struct {
	Domain Domain
	Hz     uint32
}

// BoostProfile is applied in order while installing.
var BoostProfile = []Setting{
	{Domain: CPU, Hz: 1785000000},
	{Domain: GPU, Hz: 76800000},
	{Domain: Memory, Hz: 1600000000},
}

// Controller sets a clock and reports the value it replaced.
type Controller interface {
	Set(d Domain, hz uint32) (prev uint32, err error)
}

// Guard holds raised clocks until Release is called.
type Guard struct {
	ctrl     Controller
	restore  []Setting
	released bool
}

// Acquire raises every clock in BoostProfile when enabled. A disabled or nil
// controller yields a guard whose Release does nothing. If a domain cannot be
// raised, the domains already changed are restored and the error is returned.
func Acquire(ctrl Controller, enabled bool) (*Guard, error) {
	g := &Guard{ctrl: ctrl}
	if !enabled || ctrl == nil {
		return g, nil
	}
	for _, s := range BoostProfile {
		prev, err := ctrl.Set(s.Domain, s.Hz)
		if err != nil {
			g.Release()
			return &Guard{released: true}, fmt.Errorf("failed to raise %s clock: %w", s.Domain, err)
		}
		g.restore = append(g.restore, Setting{Domain: s.Domain, Hz: prev})
	}
	logging.Debug("Clocks raised", "domains", len(g.restore))
	return g, nil
}

// Active reports whether the guard still holds raised clocks.
func (g *Guard) Active() bool {
	return !g.released && len(g.restore) > 0
}

// Release restores the previous clock values in reverse order. Safe to call more than once.
func (g *Guard) Release() error {
	if g == nil || g.released {
		return nil
	}
	g.released = true

	var errs []error
	for i := len(g.restore) - 1; i >= 0; i-- {
		s := g.restore[i]
		if _, err := g.ctrl.Set(s.Domain, s.Hz); err != nil {
			logging.Warn("Failed to restore clock", "domain", s.Domain.String(), "error", err)
			errs = append(errs, fmt.Errorf("restore %s clock: %w", s.Domain, err))
		}
	}
	if len(g.restore) > 0 {
		logging.Debug("Clocks restored", "domains", len(g.restore))
	}
	return errors.Join(errs...)
}

// MemoryController keeps clock values in memory. Used where no hardware
// controller exists, and in tests.
type MemoryController struct {
	mu     sync.Mutex
	values map[Domain]uint32
	calls  int
}

// NewMemoryController starts with the given values; unset domains read as zero.
func NewMemoryController(initial map[Domain]uint32) *MemoryController {
	values := make(map[Domain]uint32, len(initial))
	for d, hz := range initial {
		values[d] = hz
	}
	return &MemoryController{values: values}
}

// Set implements Controller.
func (m *MemoryController) Set(d Domain, hz uint32) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.values[d]
	m.values[d] = hz
	m.calls++
	return prev, nil
}

// Get returns the current value of d.
func (m *MemoryController) Get(d Domain) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[d]
}

// Calls returns how many times Set was invoked.
func (m *MemoryController) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
