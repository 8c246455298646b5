package workerpool

import "errors"

var errPanic = errors.New("task panicked")
