package elev

import (
	"context"
	"errors"
	"log/slog"

	"liftsim/src/config"
	"liftsim/src/types"
)

type BuildingStore interface {
	FirstBuilding(ctx context.Context) (types.Building, error)
	CreateBuilding(ctx context.Context, name string, totalFloors int) (types.Building, error)
	CreateElevator(ctx context.Context, buildingID, name string, floor int) (types.Elevator, error)
}

// InitBuilding returns the existing building, or creates the configured one with its
// elevators idle at the ground floor.
func InitBuilding(ctx context.Context, store BuildingStore, cfg config.BuildingConfig) (types.Building, error) {
	building, err := store.FirstBuilding(ctx)
	if err == nil {
		slog.Info("Building loaded", "building", building.ID, "name", building.Name)
		return building, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return types.Building{}, err
	}

	building, err = store.CreateBuilding(ctx, cfg.Name, cfg.TotalFloors)
	if err != nil {
		return types.Building{}, err
	}
	for _, name := range cfg.ElevatorNames {
		e, err := store.CreateElevator(ctx, building.ID, name, 0)
		if err != nil {
			return types.Building{}, err
		}
		slog.Debug("Elevator initialized", "elevator", e.ID, "name", name)
	}
	slog.Info("Building created",
		"building", building.ID,
		"name", building.Name,
		"floors", building.TotalFloors,
		"elevators", len(cfg.ElevatorNames))
	return building, nil
}
