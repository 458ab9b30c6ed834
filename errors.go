package flowops

import "errors"

var (
	// Store errors.
	ErrNotFound    = errors.New("flowops: key not found")
	ErrQueueEmpty  = errors.New("flowops: queue empty")
	ErrStoreClosed = errors.New("flowops: store closed")

	// Not found errors.
	ErrRunNotFound        = errors.New("flowops: run not found")
	ErrCheckpointNotFound = errors.New("flowops: checkpoint not found")
	ErrGraphNotFound      = errors.New("flowops: graph not found")

	// State errors.
	ErrRunNotSuspended = errors.New("flowops: run is not awaiting approval")
	ErrRunTerminal     = errors.New("flowops: run already reached a terminal state")
)
