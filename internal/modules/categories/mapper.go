package categories

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stavrou/budgetd/internal/events"
)

// Fetcher supplies the upstream category tree for one source.
type Fetcher interface {
	FetchCategories(ctx context.Context) ([]ExternalGroup, error)
}

// Mapper snapshots upstream categories and keeps the category map current.
type Mapper struct {
	repo   *Repository
	events *events.Manager
	log    zerolog.Logger
}

// NewMapper creates a new category mapper.
func NewMapper(repo *Repository, eventManager *events.Manager, log zerolog.Logger) *Mapper {
	return &Mapper{
		repo:   repo,
		events: eventManager,
		log:    log.With().Str("service", "category_mapper").Logger(),
	}
}

// Sync snapshots the source's category tree and refreshes the map.
//
// Group rows land first so categories can reference their local parent.
// For each external category the mapping resolves in order: existing map
// row (kept untouched), case-insensitive internal name match, and finally
// the Holding category. The map only ever grows.
func (m *Mapper) Sync(ctx context.Context, source string, fetcher Fetcher) (*SyncResult, error) {
	groups, err := fetcher.FetchCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch categories from %s: %w", source, err)
	}

	holdingID, err := m.repo.EnsureHolding()
	if err != nil {
		return nil, err
	}

	result := &SyncResult{Source: source}

	groupLocalIDs := make(map[string]int64, len(groups))
	for _, g := range groups {
		localID, err := m.repo.UpsertExternal(source, g.ID, g.Name, nil, g.Archived)
		if err != nil {
			return nil, err
		}
		groupLocalIDs[g.ID] = localID
		result.GroupsSeen++
		result.CategoriesUpserted++
	}

	for _, g := range groups {
		parentID := groupLocalIDs[g.ID]
		for _, c := range g.Categories {
			if _, err := m.repo.UpsertExternal(source, c.ID, c.Name, &parentID, c.Archived); err != nil {
				return nil, err
			}
			result.CategoriesSeen++
			result.CategoriesUpserted++

			existing, err := m.repo.MapLookup(source, c.ID)
			if err != nil {
				return nil, err
			}
			if existing != nil {
				continue
			}

			internalID := holdingID
			if match, err := m.repo.FindInternalByName(c.Name); err != nil {
				return nil, err
			} else if match != nil {
				internalID = *match
			}

			created, err := m.repo.EnsureMap(source, c.ID, internalID)
			if err != nil {
				return nil, err
			}
			if created {
				result.MapsCreated++
			}
		}
	}

	m.log.Info().
		Str("source", source).
		Int("groups", result.GroupsSeen).
		Int("categories", result.CategoriesSeen).
		Int("maps_created", result.MapsCreated).
		Msg("Category sync complete")

	if m.events != nil {
		m.events.Emit(events.CategoriesSynced, "categories", map[string]interface{}{
			"source":       source,
			"categories":   result.CategoriesSeen,
			"maps_created": result.MapsCreated,
		})
	}

	return result, nil
}
