package heat

import (
	"errors"
	"fmt"
	"sync"
)

// MaxPoints is the most points the rendering stage accepts in one submission.
const MaxPoints = 1023

// ErrCapacityExceeded is returned when a submission holds more points than a
// surface can render.
var ErrCapacityExceeded = errors.New("point capacity exceeded")

// Surface holds the point set currently handed to the renderer. It never
// holds more than its capacity; an oversized submission is rejected and the
// previous contents stay in place.
type Surface struct {
	mu         sync.RWMutex
	capacity   int
	points     []WeightedPoint
	generation uint64
}

// NewSurface creates a surface. A capacity <= 0 uses MaxPoints.
func NewSurface(capacity int) *Surface {
	if capacity <= 0 {
		capacity = MaxPoints
	}
	return &Surface{capacity: capacity}
}

// Capacity returns the maximum number of points Submit accepts.
func (s *Surface) Capacity() int {
	return s.capacity
}

// Submit replaces the rendered set. An empty or nil slice clears it.
func (s *Surface) Submit(points []WeightedPoint) error {
	if len(points) > s.capacity {
		return fmt.Errorf("submit %d points: %w (capacity %d)", len(points), ErrCapacityExceeded, s.capacity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(points) == 0 {
		s.points = nil
	} else {
		s.points = clonePoints(points)
	}
	s.generation++
	return nil
}

// Points returns a copy of the rendered set.
func (s *Surface) Points() []WeightedPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePoints(s.points)
}

// Len returns the number of rendered points.
func (s *Surface) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

// Generation counts accepted submissions, including clears.
func (s *Surface) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}
