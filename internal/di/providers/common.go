package providers

import "time"

const (
	// shutdownTimeout bounds graceful shutdown of any single service.
	shutdownTimeout = 30 * time.Second

	// Per-host asset download throttle.
	downloadRPS   = 2
	downloadBurst = 4

	// Per-client control API throttle.
	apiRPS   = 20
	apiBurst = 40
)
