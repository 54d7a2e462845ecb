// Package interfaces defines the named, out-of-depth service contracts the
// engine's collaborators are built against, without pulling their
// implementations into the engine's import graph.
package interfaces

import (
	"context"

	"github.com/bobmcallan/vire-engine/internal/models"
)

// MirrorStore is the write-only contract the durable mirror persists
// committed engine state through. Nothing in the engine reads from it; it
// exists purely so operators can inspect job/queue/server history after a
// restart. Implementations live in internal/engine/mirror.
type MirrorStore interface {
	SaveJob(ctx context.Context, snapshot *models.JobSnapshot) error
	SaveQueue(ctx context.Context, snapshot *models.QueueSnapshot) error
	SaveServer(ctx context.Context, snapshot *models.ServerSnapshot) error
	Close() error
}
