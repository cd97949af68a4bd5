// Package screen grabs frames from the displays, reports the foreground
// activity, and stores frames on disk as assets.
package screen

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// ErrNoDisplays is returned when no active display can be captured.
var ErrNoDisplays = errors.New("no active displays")

// Grabber captures one frame per monitor.
type Grabber interface {
	Grab(ctx context.Context) ([]image.Image, error)
}

// DisplayGrabber captures the attached displays.
type DisplayGrabber struct {
	// PrimaryOnly limits capture to display 0.
	PrimaryOnly bool
}

// NewDisplayGrabber creates a grabber for the attached displays.
func NewDisplayGrabber(primaryOnly bool) *DisplayGrabber {
	return &DisplayGrabber{PrimaryOnly: primaryOnly}
}

// Grab captures every active display in index order.
func (g *DisplayGrabber) Grab(ctx context.Context) ([]image.Image, error) {
	n := screenshot.NumActiveDisplays()
	if n <= 0 {
		return nil, ErrNoDisplays
	}
	if g.PrimaryOnly {
		n = 1
	}

	frames := make([]image.Image, 0, n)
	for i := range n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := screenshot.CaptureRect(screenshot.GetDisplayBounds(i))
		if err != nil {
			return nil, fmt.Errorf("capturing display %d: %w", i, err)
		}
		frames = append(frames, img)
	}
	return frames, nil
}
