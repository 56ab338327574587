package broker

import "errors"

// Sentinel errors returned by broker operations. Both surfaces translate
// them: the protocol handler to error frames, the control plane to HTTP
// status codes.
var (
	ErrTopicNotFound = errors.New("topic not found")
	ErrTopicExists   = errors.New("topic already exists")
	ErrInvalidName   = errors.New("topic name is required")
	ErrBadMessage    = errors.New("invalid message")
)
