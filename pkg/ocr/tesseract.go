// Package ocr recognizes text on captured frames with the tesseract CLI.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"strings"

	"github.com/papercomputeco/recall/pkg/extract"
)

const (
	DefaultCommand  = "tesseract"
	DefaultLanguage = "eng"
)

// Tesseract runs the tesseract binary against a temporary PNG of the frame.
type Tesseract struct {
	command  string
	language string
}

// Config configures the Tesseract recognizer.
type Config struct {
	// Command is the tesseract executable name or path.
	Command string

	// Language is passed to tesseract's -l flag.
	Language string
}

// NewTesseract returns a recognizer, filling defaults for empty fields.
func NewTesseract(c Config) *Tesseract {
	if c.Command == "" {
		c.Command = DefaultCommand
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	return &Tesseract{command: c.Command, language: c.Language}
}

// Recognize returns the raw text tesseract reads from img.
func (t *Tesseract) Recognize(ctx context.Context, img image.Image) (string, error) {
	path, err := exec.LookPath(t.command)
	if err != nil {
		return "", fmt.Errorf("%w: %s not found: %v", extract.ErrUnavailable, t.command, err)
	}

	f, err := os.CreateTemp("", "recall-ocr-*.png")
	if err != nil {
		return "", fmt.Errorf("creating temp frame: %w", err)
	}
	defer os.Remove(f.Name())

	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", fmt.Errorf("encoding temp frame: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing temp frame: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, f.Name(), "stdout", "-l", t.language)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("tesseract exited %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("running tesseract: %w", err)
	}

	return stdout.String(), nil
}

var _ extract.TextRecognizer = (*Tesseract)(nil)
