package catalog

import (
	"fmt"
	"sort"

	"github.com/scottyhq/dinoSARaws/catalog/entities"
	"github.com/scottyhq/dinoSARaws/common"
)

// FindScenes returns the scenes of the orbit acquired on date (YYYYMMDD)
func FindScenes(scenes entities.Scenes, orbit int, date string) (entities.Scenes, error) {
	found := scenes.Filter(orbit, date)
	if len(found) == 0 {
		return nil, fmt.Errorf("FindScenes: no scene found for orbit %d on %s", orbit, date)
	}
	return found, nil
}

// Dates returns the distinct dates of acquisition (YYYYMMDD) of the orbit, most recent first
func Dates(scenes entities.Scenes, orbit int) []string {
	set := map[string]struct{}{}
	for _, s := range scenes.Filter(orbit, "") {
		set[s.DateStamp] = struct{}{}
	}
	dates := make([]string, 0, len(set))
	for d := range set {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates
}

// Pairs returns the pairs of consecutive dates of the orbit, most recent first.
// The main date is the most recent date of the pair.
// If n > 0, only the n most recent pairs are returned
func Pairs(scenes entities.Scenes, orbit, n int) []common.Pair {
	dates := Dates(scenes, orbit)
	pairs := []common.Pair{}
	for i := 0; i+1 < len(dates); i++ {
		if n > 0 && len(pairs) == n {
			break
		}
		pairs = append(pairs, common.Pair{Main: dates[i], Secondary: dates[i+1], Path: orbit})
	}
	return pairs
}

// PairScenes returns the scenes of the main and secondary dates of the pair
func PairScenes(scenes entities.Scenes, pair common.Pair) (entities.Scenes, entities.Scenes, error) {
	main, err := FindScenes(scenes, pair.Path, pair.Main)
	if err != nil {
		return nil, nil, fmt.Errorf("PairScenes[%s].%w", pair.IntName(), err)
	}
	secondary, err := FindScenes(scenes, pair.Path, pair.Secondary)
	if err != nil {
		return nil, nil, fmt.Errorf("PairScenes[%s].%w", pair.IntName(), err)
	}
	return main, secondary, nil
}

// PairAttrs returns attrs completed with the granules of the main and secondary dates of the pair
func PairAttrs(scenes entities.Scenes, pair common.Pair, attrs common.PairAttrs) (common.PairAttrs, error) {
	main, secondary, err := PairScenes(scenes, pair)
	if err != nil {
		return attrs, err
	}
	attrs.MainScenes = granules(main)
	attrs.SecondaryScenes = granules(secondary)
	return attrs, nil
}

func granules(scenes entities.Scenes) []string {
	names := make([]string, len(scenes))
	for i, s := range scenes {
		names[i] = s.GranuleName
	}
	return names
}
