package http

import (
	"context"

	"github.com/ff-einsatz/hydrantmap/internal/core/ports"
	"github.com/ff-einsatz/hydrantmap/internal/core/usecases"
)

// Pinger is a backing service the readiness probe can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnStatus reports whether a broker connection is up.
type ConnStatus interface {
	Connected() bool
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Clusters *usecases.ClusterService
	Records  ports.RecordRepository
	Viewport usecases.ViewportConfig
	Sessions *SessionHub
	DB       Pinger
	NATS     ConnStatus
	Cache    Pinger
}
