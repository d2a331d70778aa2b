package quiz

import (
	"errors"
	"fmt"
)

var (
	// ErrNoValidItems means the output parsed but every item failed validation.
	ErrNoValidItems = errors.New("no valid quiz items in model output")
	// ErrNoMaterial means the subject or link provided no text to build questions from.
	ErrNoMaterial = errors.New("no lecture material available")
)

// ParseError means the model output could not be read as quiz JSON by any strategy.
// Raw holds the untouched output for diagnosis.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse quiz output: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
