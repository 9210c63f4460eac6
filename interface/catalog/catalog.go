package catalog

import (
	"context"

	"github.com/scottyhq/dinoSARaws/catalog/entities"
)

// ScenesProvider searches an archive for the scenes covering an area
type ScenesProvider interface {
	SearchScenes(ctx context.Context, area *entities.Area) (entities.Scenes, error)
}
