package interpret

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Interpreter wraps a CallFunc with the frame interpretation prompt.
type Interpreter struct {
	call CallFunc
}

// Frame is what is known about one captured frame.
type Frame struct {
	Vision string
	OCR    string
	App    string
	Title  string
}

// NewInterpreter returns an Interpreter using call.
func NewInterpreter(call CallFunc) *Interpreter {
	return &Interpreter{call: call}
}

// Interpret returns the model's synthesized description of f.
func (i *Interpreter) Interpret(ctx context.Context, f Frame) (string, error) {
	if strings.TrimSpace(f.Vision) == "" && strings.TrimSpace(f.OCR) == "" {
		return "", errors.New("nothing to interpret")
	}

	out, err := i.call(ctx, Prompt(f))
	if err != nil {
		return "", fmt.Errorf("interpreting frame: %w", err)
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.New("interpretation was empty")
	}
	return out, nil
}

// Prompt renders the interpretation prompt for f. Empty fields are omitted.
func Prompt(f Frame) string {
	var b strings.Builder
	b.WriteString("You are indexing a person's screen history for later search. ")
	b.WriteString("Write two or three sentences describing what the user was doing, ")
	b.WriteString("naming the application, the website or document, and the key topics or text. ")
	b.WriteString("Reply with the description only.\n\n")

	if f.App != "" {
		fmt.Fprintf(&b, "Application: %s\n", f.App)
	}
	if f.Title != "" {
		fmt.Fprintf(&b, "Window title: %s\n", f.Title)
	}
	if v := strings.TrimSpace(f.Vision); v != "" {
		fmt.Fprintf(&b, "Screenshot description: %s\n", v)
	}
	if o := strings.TrimSpace(f.OCR); o != "" {
		fmt.Fprintf(&b, "Text on screen: %s\n", o)
	}

	return b.String()
}
