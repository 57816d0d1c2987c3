package server

import "time"

const (
	// Per-connection outbound queue; a client that falls this far behind is dropped.
	SendBuffer = 16

	WriteTimeout = 5 * time.Second

	// MaxReadSize caps inbound WebSocket messages.
	MaxReadSize = 4096
)
