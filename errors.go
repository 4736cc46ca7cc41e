package pomodoro

import (
	"errors"
	"fmt"
)

// ErrUnknownCommand is returned for a request whose tag names no command.
var ErrUnknownCommand = errors.New("unknown command")

// OpError records which collaborator operation failed and for which key.
type OpError struct {
	Op  string
	Key string
	Err error
}

func (e *OpError) Error() string {
	if e == nil {
		return ""
	}
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func wrapOpErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Key: key, Err: err}
}
