package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stavrou/budgetd/internal/config"
	"github.com/stavrou/budgetd/internal/database"
	"github.com/stavrou/budgetd/internal/events"
)

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
// 1. Open and migrate the store
// 2. Initialize repositories
// 3. Initialize services
//
// Repository and service constructors cannot fail; the only fallible step is
// opening the store, so there is no partial-teardown path beyond closing it.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	db, err := database.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}

	container := &Container{DB: db}
	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	InitializeRepositories(container, log)
	InitializeServices(container, cfg, log)

	log.Info().Msg("Dependency injection wiring completed successfully")

	return container, nil
}
