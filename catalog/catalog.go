package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/scottyhq/dinoSARaws/catalog/entities"
	"github.com/scottyhq/dinoSARaws/interface/catalog"
	"github.com/scottyhq/dinoSARaws/interface/catalog/asf"
	"github.com/scottyhq/dinoSARaws/service"
	"github.com/scottyhq/dinoSARaws/service/log"
)

// InventoryFile is the name of the inventory written by Inventory
const InventoryFile = "query.geojson"

// Catalog is the main class of this package
type Catalog struct {
	Provider   catalog.ScenesProvider
	WorkingDir string
}

// Inventory searches the scenes covering the area, removes the double entries,
// computes the derived fields and saves the inventory in WorkingDir (if defined)
func (c *Catalog) Inventory(ctx context.Context, area entities.Area) (entities.Scenes, error) {
	if c.Provider == nil {
		return nil, fmt.Errorf("Inventory: no scenes provider")
	}
	log.Logger(ctx).Sugar().Debugf("Search scenes for %v from %v to %v", area.SNWE, area.StartTime, area.EndTime)
	scenes, err := c.Provider.SearchScenes(ctx, &area)
	if err != nil {
		return nil, fmt.Errorf("Inventory.%w", err)
	}
	scenes = removeDoubleEntries(scenes)
	sortScenes(scenes)
	scenes.AutoFill()
	log.Logger(ctx).Sugar().Infof("%d scenes found in %d orbits", len(scenes), len(scenes.Orbits()))

	if c.WorkingDir != "" {
		if err := Save(scenes, filepath.Join(c.WorkingDir, InventoryFile)); err != nil {
			return nil, fmt.Errorf("Inventory.%w", err)
		}
	}
	return scenes, nil
}

// Load reads an inventory from a local or remote file (gs://, s3://, http(s)://).
// The file is either a GeoJSON inventory (see Save) or the raw json output of the ASF search API.
func Load(ctx context.Context, file string) (entities.Scenes, error) {
	b, err := service.ReadFile(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("Load.%w", err)
	}
	scenes, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("Load[%s].%w", file, err)
	}
	return scenes, nil
}

// Parse parses a GeoJSON inventory or the raw json output of the ASF search API
func Parse(b []byte) (entities.Scenes, error) {
	var scenes entities.Scenes
	if b = bytes.TrimSpace(b); len(b) > 0 && b[0] == '[' {
		var err error
		if scenes, err = asf.ParseScenes(b); err != nil {
			return nil, fmt.Errorf("Parse.%w", err)
		}
	} else if err := json.Unmarshal(b, &scenes); err != nil {
		return nil, fmt.Errorf("Parse.Unmarshal: %w", err)
	}
	scenes = removeDoubleEntries(scenes)
	sortScenes(scenes)
	scenes.AutoFill()
	return scenes, nil
}

// Save writes the inventory as GeoJSON (overwrites existing file)
func Save(scenes entities.Scenes, file string) error {
	b, err := json.Marshal(scenes)
	if err != nil {
		return fmt.Errorf("Save.Marshal: %w", err)
	}
	if err := os.WriteFile(file, b, 0644); err != nil {
		return fmt.Errorf("Save.WriteFile: %w", err)
	}
	return nil
}

// removeDoubleEntries keeps the latest processed version of each product
func removeDoubleEntries(scenes entities.Scenes) entities.Scenes {
	identifiers := map[string]int{}

	j := 0
	for _, scene := range scenes {
		scene.AutoFill()
		if k, ok := identifiers[scene.ProductName]; !ok {
			scenes[j] = scene
			identifiers[scene.ProductName] = j
			j++
		} else if scenes[k].ProcessingDate.Before(scene.ProcessingDate) {
			scenes[k] = scene
		}
	}

	return scenes[0:j]
}

// sortScenes by date, then granule name
func sortScenes(scenes entities.Scenes) {
	sort.SliceStable(scenes, func(i, j int) bool {
		if !scenes[i].SceneDate.Equal(scenes[j].SceneDate) {
			return scenes[i].SceneDate.Before(scenes[j].SceneDate)
		}
		return scenes[i].GranuleName < scenes[j].GranuleName
	})
}
