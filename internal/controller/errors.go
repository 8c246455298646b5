package controller

import "errors"

var (
	errAlreadyRunning = errors.New("controller already running")
	errQueueFull      = errors.New("command queue full")
)
