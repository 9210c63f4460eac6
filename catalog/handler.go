package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/scottyhq/dinoSARaws/catalog/entities"
	"github.com/scottyhq/dinoSARaws/service/log"
)

const areaJSONField = "area"
const scenesJSONField = "scenes"

// AddHandler adds the endpoints of the catalog to the router
func (c *Catalog) AddHandler(r *mux.Router) {
	r.HandleFunc("/catalog/scenes", c.ScenesHandler).Methods("GET", "POST")
	r.HandleFunc("/catalog/summary", SummaryHandler).Methods("POST")
	r.HandleFunc("/catalog/orbits/{orbit}/pairs", PairsHandler).Methods("POST")
}

func readField(req *http.Request, field string) ([]byte, error) {
	if req.FormValue(field) != "" {
		return []byte(req.FormValue(field)), nil
	}
	file, _, err := req.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var buf bytes.Buffer
	io.Copy(&buf, file)
	return buf.Bytes(), nil
}

func loadArea(req *http.Request) (entities.Area, error) {
	area := entities.Area{}
	areaJSON, err := readField(req, areaJSONField)
	if err != nil {
		return area, err
	}
	if len(areaJSON) == 0 {
		return area, fmt.Errorf("loadArea: missing required field: '%s' (application/json)", areaJSONField)
	}
	if err := json.Unmarshal(areaJSON, &area); err != nil {
		return area, fmt.Errorf("loadArea: %w\nJSON:\n%s", err, areaJSON)
	}
	return area, nil
}

func loadScenes(w http.ResponseWriter, req *http.Request) (entities.Scenes, error) {
	scenesJSON, err := readField(req, scenesJSONField)
	if err != nil || len(scenesJSON) == 0 {
		if err == nil {
			err = fmt.Errorf("missing required field: '%s' (application/json)", scenesJSONField)
		}
		w.WriteHeader(400)
		fmt.Fprintf(w, "%v", err)
		return nil, err
	}
	scenes, err := Parse(scenesJSON)
	if err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "%v", err)
		return nil, err
	}
	return scenes, nil
}

func writeJSON(w http.ResponseWriter, req *http.Request, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Logger(req.Context()).Sugar().Warnf("catalog.writeJSON: %v", err)
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
	}
}

// ScenesHandler searches the scenes of an area and returns a GeoJSON inventory
func (c *Catalog) ScenesHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	area, err := loadArea(req)
	if err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "%v", err)
		return
	}

	scenes, err := c.Inventory(ctx, area)
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("catalog.ScenesHandler.%v", err)
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
		return
	}
	writeJSON(w, req, scenes)
}

// SummaryHandler returns the summary per orbit of an inventory
func SummaryHandler(w http.ResponseWriter, req *http.Request) {
	scenes, err := loadScenes(w, req)
	if err != nil {
		log.Logger(req.Context()).Sugar().Warnf("catalog.SummaryHandler: %v", err)
		return
	}
	writeJSON(w, req, Summarize(scenes))
}

// PairsHandler returns the pairs of consecutive dates of an orbit of the inventory (?n=number of pairs)
func PairsHandler(w http.ResponseWriter, req *http.Request) {
	orbit, err := strconv.Atoi(mux.Vars(req)["orbit"])
	if err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "invalid orbit: %v", err)
		return
	}
	n := 0
	if v := req.URL.Query().Get("n"); v != "" {
		if n, err = strconv.Atoi(v); err != nil {
			w.WriteHeader(400)
			fmt.Fprintf(w, "invalid n: %v", err)
			return
		}
	}
	scenes, err := loadScenes(w, req)
	if err != nil {
		log.Logger(req.Context()).Sugar().Warnf("catalog.PairsHandler: %v", err)
		return
	}
	writeJSON(w, req, Pairs(scenes, orbit, n))
}
