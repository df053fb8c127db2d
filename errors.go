package instruments

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrUnsupportedInterface is returned for connection strings that do not
	// use the GPIB board/address scheme.
	ErrUnsupportedInterface = errors.New("unsupported instrument interface")

	// ErrSessionClosed is returned by every operation on a closed session.
	ErrSessionClosed = errors.New("instrument session closed")

	// ErrValidation is matched by ValidationError and RangeError.
	ErrValidation = errors.New("invalid argument")
)

// ValidationError reports a value outside an enumerated allow-list.
type ValidationError struct {
	Setting string
	Value   string
	Allowed []string
}

func (e *ValidationError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("invalid %s \"%s\"", e.Setting, e.Value)
	}
	return fmt.Sprintf("invalid %s \"%s\", expected one of %s",
		e.Setting, e.Value, strings.Join(e.Allowed, ", "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// RangeError reports an integer argument outside [Min, Max].
type RangeError struct {
	Name  string
	Value int
	Min   int
	Max   int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %d out of range [%d, %d]", e.Name, e.Value, e.Min, e.Max)
}

func (e *RangeError) Is(target error) bool { return target == ErrValidation }

// ParseError reports a reply token that is not a valid number.
type ParseError struct {
	Cmd   string
	Token string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse \"%s\" in reply to \"%s\"", e.Token, e.Cmd)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ConnectionError wraps a transport failure during open, send or query.
type ConnectionError struct {
	Op  string
	Cmd string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Cmd == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s \"%s\": %v", e.Op, e.Cmd, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// InstrumentError carries a fault reported by the instrument error queue.
// It is only returned by sessions opened with WithStrictErrors.
type InstrumentError struct {
	Message string
}

func (e *InstrumentError) Error() string {
	return fmt.Sprintf("instrument reported error: %s", e.Message)
}

func checkRange(name string, value, min, max int) error {
	if value < min || value > max {
		return &RangeError{Name: name, Value: value, Min: min, Max: max}
	}
	return nil
}
