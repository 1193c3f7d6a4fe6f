package model

import "errors"

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrJobTerminal is returned when mutating a job that already finished.
var ErrJobTerminal = errors.New("job is in a terminal state")
