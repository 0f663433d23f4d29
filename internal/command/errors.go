package command

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownCommand means no node matched the input. Hosts answer with a
// generic "not understood" message.
var ErrUnknownCommand = errors.New("unknown command")

// ConfigurationError reports a malformed tree. It is fatal at startup.
type ConfigurationError struct {
	Path   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return "command config: " + e.Reason
	}
	return fmt.Sprintf("command config: %s: %s", e.Path, e.Reason)
}

func configErr(path []string, format string, args ...any) error {
	return &ConfigurationError{Path: strings.Join(path, " "), Reason: fmt.Sprintf(format, args...)}
}

// ArgumentCountError means a leaf got fewer arguments than it needs.
// The bound operation was not invoked.
type ArgumentCountError struct {
	Path []string
	Help string
	Want int
	Got  int
}

func (e *ArgumentCountError) Error() string {
	return fmt.Sprintf("%s: need at least %d argument(s), got %d", strings.Join(e.Path, " "), e.Want, e.Got)
}

// Usage renders "<path> <help>".
func (e *ArgumentCountError) Usage() string {
	return strings.TrimSpace(strings.Join(e.Path, " ") + " " + e.Help)
}
