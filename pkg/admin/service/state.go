package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/chainsafe/rwa-bridge/pkg/bridge"
	"github.com/chainsafe/rwa-bridge/pkg/db"
)

// Checkpointed is a deployment whose bridges can be brought back to a stored
// state.
type Checkpointed interface {
	BridgeIDs() []string
	Bridge(id string) (bridge.Instance, error)
	InitialSnapshot(id string) (bridge.Snapshot, bool)
}

// RestoreState loads the last checkpoint of every bridge. Bridges without one
// get their deployed state stored as the first checkpoint.
func RestoreState(ctx context.Context, deployment Checkpointed, store db.BridgeStateStore, logger *zap.Logger) error {
	for _, id := range deployment.BridgeIDs() {
		inst, err := deployment.Bridge(id)
		if err != nil {
			return err
		}

		snap, err := store.LoadBridgeState(ctx, id)
		switch {
		case errors.Is(err, db.ErrNotFound):
			initial, ok := deployment.InitialSnapshot(id)
			if !ok {
				initial = inst.Snapshot()
			}
			if err := store.SaveBridgeState(ctx, initial); err != nil {
				return fmt.Errorf("failed to store initial state of %s: %w", id, err)
			}
			logger.Info("Stored initial bridge state", zap.String("bridge", id))
		case err != nil:
			return fmt.Errorf("failed to load state of %s: %w", id, err)
		default:
			if err := inst.Restore(*snap); err != nil {
				return fmt.Errorf("failed to restore %s: %w", id, err)
			}
			logger.Info("Restored bridge state",
				zap.String("bridge", id),
				zap.Bool("paused", snap.Paused),
				zap.String("owner", snap.Owner.Hex()))
		}
	}
	return nil
}
