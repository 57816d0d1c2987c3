package grpcclient

import "time"

const (
	// HealthCheckTimeout bounds one Check call when the caller sets no deadline.
	HealthCheckTimeout = 2 * time.Second
)
