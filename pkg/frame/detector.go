package frame

import (
	"image"
	"sync"
)

// DefaultThreshold is the similarity at or above which two frames count
// as unchanged.
const DefaultThreshold = 0.9

// Detector keeps one baseline plane per monitor.
type Detector struct {
	mu        sync.Mutex
	threshold float64
	baselines []*Plane
}

// NewDetector returns a Detector using threshold, or DefaultThreshold when
// threshold is not in (0, 1].
func NewDetector(threshold float64) *Detector {
	d := &Detector{}
	d.SetThreshold(threshold)
	return d
}

// SetThreshold updates the similarity threshold.
func (d *Detector) SetThreshold(threshold float64) {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	d.mu.Lock()
	d.threshold = threshold
	d.mu.Unlock()
}

// Threshold returns the current similarity threshold.
func (d *Detector) Threshold() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.threshold
}

// Sync prepares a capture cycle. When no baseline exists yet or the number
// of monitors changed, every frame becomes the new baseline and Sync
// returns false: nothing is reported as changed for that cycle.
func (d *Detector) Sync(frames []image.Image) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.baselines != nil && len(d.baselines) == len(frames) {
		return true
	}

	d.baselines = make([]*Plane, len(frames))
	for i, f := range frames {
		d.baselines[i] = Gray(f)
	}
	return false
}

// Changed compares frame against the baseline for monitor and replaces the
// baseline when the frame differs. Frames with a different shape than the
// baseline count as changed.
func (d *Detector) Changed(monitor int, frame image.Image) bool {
	current := Gray(frame)

	d.mu.Lock()
	defer d.mu.Unlock()

	if monitor < 0 || monitor >= len(d.baselines) {
		return false
	}

	score, err := MSSIM(d.baselines[monitor], current)
	if err == nil && score >= d.threshold {
		return false
	}

	d.baselines[monitor] = current
	return true
}

// Reset drops all baselines so the next Sync re-baselines.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.baselines = nil
	d.mu.Unlock()
}
