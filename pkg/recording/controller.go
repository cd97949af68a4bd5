// Package recording provides the pause/resume/stop controller that gates
// the capture loop.
package recording

import (
	"sync"
	"time"
)

// Status is the controller's lifecycle state.
type Status string

const (
	StatusRecording Status = "recording"
	StatusPaused    Status = "paused"
	StatusStopped   Status = "stopped"
)

// State is a point-in-time snapshot of the controller.
type State struct {
	Status       Status    `json:"status"`
	IsRecording  bool      `json:"is_recording"`
	IsPaused     bool      `json:"is_paused"`
	IsStopped    bool      `json:"is_stopped"`
	SessionStart time.Time `json:"session_start_time"`
}

// Controller coordinates a capture loop with API callers. The "go" signal is
// modelled as a channel that is closed while recording is allowed and
// replaced by an open one on pause.
type Controller struct {
	mu           sync.Mutex
	status       Status
	sessionStart time.Time

	goCh     chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewController returns a controller in the Recording state.
func NewController() *Controller {
	goCh := make(chan struct{})
	close(goCh)

	return &Controller{
		status:       StatusRecording,
		sessionStart: time.Now(),
		goCh:         goCh,
		stopCh:       make(chan struct{}),
	}
}

// Pause clears the go signal. It reports whether a transition happened.
func (c *Controller) Pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusRecording {
		return false
	}

	c.goCh = make(chan struct{})
	c.status = StatusPaused
	return true
}

// Resume sets the go signal again. It reports whether a transition happened.
func (c *Controller) Resume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusPaused {
		return false
	}

	close(c.goCh)
	c.status = StatusRecording
	return true
}

// Stop moves the controller to its terminal state and releases any waiter.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		close(c.stopCh)
		if c.status == StatusPaused {
			close(c.goCh)
		}
		c.status = StatusStopped
	})
}

// Stopped reports whether Stop has been called.
func (c *Controller) Stopped() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// Paused reports whether the go signal is currently cleared.
func (c *Controller) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == StatusPaused
}

// Done is closed once the controller is stopped.
func (c *Controller) Done() <-chan struct{} {
	return c.stopCh
}

// WaitIfPaused blocks while paused until resumed, stopped, or the timeout
// elapses. A zero or negative timeout waits without limit. It returns false
// iff the controller is stopped.
func (c *Controller) WaitIfPaused(timeout time.Duration) bool {
	if c.Stopped() {
		return false
	}

	c.mu.Lock()
	goCh := c.goCh
	c.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case <-goCh:
	case <-c.stopCh:
	case <-expired:
	}

	return !c.Stopped()
}

// Sleep waits for d or until the controller stops. It returns false when
// the wait was cut short by Stop.
func (c *Controller) Sleep(d time.Duration) bool {
	if d <= 0 {
		return !c.Stopped()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-c.stopCh:
		return false
	}
}

// State returns a snapshot of the controller.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return State{
		Status:       c.status,
		IsRecording:  c.status == StatusRecording,
		IsPaused:     c.status == StatusPaused,
		IsStopped:    c.status == StatusStopped,
		SessionStart: c.sessionStart,
	}
}
