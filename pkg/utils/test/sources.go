package testutils

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
)

// MockRecognizer returns Text for every frame, or Err when set.
type MockRecognizer struct {
	Text string
	Err  error

	calls atomic.Int64
}

func (m *MockRecognizer) Recognize(context.Context, image.Image) (string, error) {
	m.calls.Add(1)
	return m.Text, m.Err
}

func (m *MockRecognizer) Calls() int { return int(m.calls.Load()) }

// MockDescriber returns Text for every frame, or Err when set.
type MockDescriber struct {
	Text string
	Err  error

	calls atomic.Int64
}

func (m *MockDescriber) Describe(context.Context, image.Image) (string, error) {
	m.calls.Add(1)
	return m.Text, m.Err
}

func (m *MockDescriber) Calls() int { return int(m.calls.Load()) }

// MockLLM records prompts and replies with Reply, or fails with Err.
type MockLLM struct {
	Reply string
	Err   error

	mu      sync.Mutex
	prompts []string
}

func (m *MockLLM) Call(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	return m.Reply, m.Err
}

func (m *MockLLM) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// ErrNoFrames is returned by FakeGrabber once its script is exhausted.
var ErrNoFrames = errors.New("fake grabber: no frames left")

// FakeGrabber replays a scripted sequence of captures. Each call to Grab
// returns the next entry; Err entries are returned as errors.
type FakeGrabber struct {
	mu     sync.Mutex
	script [][]image.Image
	errs   map[int]error
	calls  int

	// OnExhausted runs once when the script runs out.
	OnExhausted func()
	exhausted   bool
}

func NewFakeGrabber(script ...[]image.Image) *FakeGrabber {
	return &FakeGrabber{script: script, errs: map[int]error{}}
}

// FailAt makes the n-th (0-based) Grab call return err.
func (g *FakeGrabber) FailAt(n int, err error) *FakeGrabber {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs[n] = err
	return g
}

func (g *FakeGrabber) Grab(context.Context) ([]image.Image, error) {
	g.mu.Lock()
	n := g.calls
	g.calls++
	if err, ok := g.errs[n]; ok {
		g.mu.Unlock()
		return nil, err
	}

	idx := n
	for k := range g.errs {
		if k < n {
			idx--
		}
	}
	if idx >= len(g.script) {
		fire := !g.exhausted && g.OnExhausted != nil
		g.exhausted = true
		g.mu.Unlock()
		if fire {
			g.OnExhausted()
		}
		return nil, ErrNoFrames
	}
	frames := g.script[idx]
	g.mu.Unlock()
	return frames, nil
}

func (g *FakeGrabber) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// SolidFrame returns a w x h frame filled with c.
func SolidFrame(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

// SplitFrame returns a frame whose left half is black and right half white.
func SplitFrame(w, h int) *image.RGBA {
	img := SolidFrame(w, h, color.RGBA{A: 255})
	for y := 0; y < h; y++ {
		for x := w / 2; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	return img
}
