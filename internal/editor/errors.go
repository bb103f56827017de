package editor

import (
	"errors"
	"fmt"
)

var ErrNotConfirmed = errors.New("editor: clearing all IPs requires confirmation")

// InvalidPatternError names the pattern that failed to compile.
type InvalidPatternError struct {
	Pattern string
	Err     error
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("Invalid regex pattern: %s", e.Pattern)
}

func (e *InvalidPatternError) Unwrap() error {
	return e.Err
}
