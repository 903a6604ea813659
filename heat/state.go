package heat

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// ReductionResult describes one Refresh of a PointStore.
type ReductionResult struct {
	Strategy     Strategy  `json:"strategy"`
	Reduced      bool      `json:"reduced"` // false when the input already fit
	InputCount   int       `json:"inputCount"`
	OutputCount  int       `json:"outputCount"`
	InputWeight  float64   `json:"inputWeight"`
	OutputWeight float64   `json:"outputWeight"`
	Timestamp    time.Time `json:"timestamp"`
}

// ReducedSet is the on-disk form of the last submitted point set.
type ReducedSet struct {
	Result ReductionResult `json:"result"`
	Points []WeightedPoint `json:"points"`
}

// PointStore collects point sequences from named sources and keeps the
// rendering surface fed with a reduced view of all of them.
type PointStore struct {
	mu        sync.RWMutex
	sources   map[string][]WeightedPoint
	colors    map[string]string // source ID -> hex color
	params    Params
	surface   *Surface
	last      *ReductionResult
	cachePath string // path to the reduced set cache; empty disables persistence

	refreshMu sync.Mutex
}

// NewPointStore creates a store that reduces with params onto a surface of
// MaxPoints capacity.
func NewPointStore(params Params) *PointStore {
	return &PointStore{
		sources: make(map[string][]WeightedPoint),
		colors:  make(map[string]string),
		params:  params,
		surface: NewSurface(MaxPoints),
	}
}

// NewPointStoreWithCache creates a store that persists every submitted set
// to cachePath. If the file exists its points are submitted to the surface
// right away so the renderer has something to show before any source
// reports.
func NewPointStoreWithCache(params Params, cachePath string) *PointStore {
	st := NewPointStore(params)
	st.cachePath = cachePath
	if cachePath == "" {
		return st
	}
	set, err := LoadReduced(cachePath)
	if err != nil {
		return st
	}
	if err := st.surface.Submit(set.Points); err != nil {
		log.Printf("[REDUCE] ignoring cached set %s: %v", cachePath, err)
		return st
	}
	result := set.Result
	st.last = &result
	return st
}

// SetColor sets the display color for a source.
func (st *PointStore) SetColor(sourceID, hexColor string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.colors[sourceID] = hexColor
}

// Color returns the display color for a source, red if unset.
func (st *PointStore) Color(sourceID string) string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if c := st.colors[sourceID]; c != "" {
		return c
	}
	return "#FF0000"
}

// Append adds points to the end of a source's sequence.
func (st *PointStore) Append(sourceID string, points []WeightedPoint) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sources[sourceID] = append(st.sources[sourceID], points...)
}

// Replace sets a source's sequence.
func (st *PointStore) Replace(sourceID string, points []WeightedPoint) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sources[sourceID] = clonePoints(points)
}

// ClearSource drops everything a source contributed.
func (st *PointStore) ClearSource(sourceID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sources, sourceID)
}

// Sources returns the known source IDs, sorted.
func (st *PointStore) Sources() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sortedSourcesLocked()
}

func (st *PointStore) sortedSourcesLocked() []string {
	ids := make([]string, 0, len(st.sources))
	for id := range st.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SourcePoints returns a copy of one source's sequence.
func (st *PointStore) SourcePoints(sourceID string) []WeightedPoint {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return clonePoints(st.sources[sourceID])
}

// All returns every stored point: sources in sorted ID order, each in the
// order its points arrived. The order is stable so order-sensitive
// strategies give repeatable results.
func (st *PointStore) All() []WeightedPoint {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.allLocked()
}

func (st *PointStore) allLocked() []WeightedPoint {
	var all []WeightedPoint
	for _, id := range st.sortedSourcesLocked() {
		all = append(all, st.sources[id]...)
	}
	return all
}

// Len returns the number of stored points.
func (st *PointStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	n := 0
	for _, pts := range st.sources {
		n += len(pts)
	}
	return n
}

// HasPoints returns true if any source has reported points.
func (st *PointStore) HasPoints() bool {
	return st.Len() > 0
}

// Params returns the current reduction parameters.
func (st *PointStore) Params() Params {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.params
}

// SetParams validates and installs new parameters, then refreshes the
// surface with them. A bounded maxCount above the surface capacity is
// rejected.
func (st *PointStore) SetParams(p Params) (ReductionResult, error) {
	if err := p.Validate(); err != nil {
		return ReductionResult{}, fmt.Errorf("set params: %w", err)
	}
	if err := p.CheckCapacity(st.surface.Capacity()); err != nil {
		return ReductionResult{}, fmt.Errorf("set params: %w", err)
	}
	st.mu.Lock()
	st.params = p
	st.mu.Unlock()
	return st.Refresh()
}

// Surface returns the surface this store submits to.
func (st *PointStore) Surface() *Surface {
	return st.surface
}

// LastResult returns the result of the most recent successful Refresh.
func (st *PointStore) LastResult() (ReductionResult, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.last == nil {
		return ReductionResult{}, false
	}
	return *st.last, true
}

// Refresh reduces all stored points when they exceed the surface capacity
// and submits the result. Bounded strategies never target more than the
// capacity. A canopy reduction that still does not fit is rejected by the
// surface and the previous set stays on screen.
func (st *PointStore) Refresh() (ReductionResult, error) {
	st.refreshMu.Lock()
	defer st.refreshMu.Unlock()

	st.mu.RLock()
	all := st.allLocked()
	params := st.params
	cachePath := st.cachePath
	st.mu.RUnlock()

	result := ReductionResult{
		Strategy:    params.Strategy,
		InputCount:  len(all),
		InputWeight: TotalWeight(all),
		Timestamp:   time.Now(),
	}

	out := all
	if capacity := st.surface.Capacity(); len(all) > capacity {
		if params.Strategy.Bounded() {
			params.MaxCount = min(params.MaxCount, capacity)
		}
		reduced, err := Reduce(all, params)
		if err != nil {
			return result, err
		}
		out = reduced
		result.Reduced = true
	}
	result.OutputCount = len(out)
	result.OutputWeight = TotalWeight(out)

	if err := st.surface.Submit(out); err != nil {
		log.Printf("[REDUCE] %s produced %d points from %d: %v",
			params.Strategy, result.OutputCount, result.InputCount, err)
		return result, err
	}

	st.mu.Lock()
	st.last = &result
	st.mu.Unlock()

	if cachePath != "" {
		if err := SaveReduced(cachePath, ReducedSet{Result: result, Points: out}); err != nil {
			log.Printf("warning: failed to save reduced set cache: %v", err)
		}
	}

	return result, nil
}

// SaveReduced writes a reduced set to disk as JSON.
func SaveReduced(path string, set ReducedSet) error {
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal reduced set: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write reduced set cache: %w", err)
	}
	return nil
}

// LoadReduced reads a reduced set written by SaveReduced.
func LoadReduced(path string) (*ReducedSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reduced set cache: %w", err)
	}
	var set ReducedSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("unmarshal reduced set cache: %w", err)
	}
	return &set, nil
}
