package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/scottyhq/dinoSARaws/catalog"
	"github.com/scottyhq/dinoSARaws/catalog/entities"
	"github.com/scottyhq/dinoSARaws/common"
	db "github.com/scottyhq/dinoSARaws/interface/database"
	"github.com/scottyhq/dinoSARaws/service/log"
)

const campaignJSONField = "campaign"
const scenesJSONField = "scenes"

// Campaign is a request to process the pairs of an orbit
type Campaign struct {
	AOIID string `json:"aoi"`
	Orbit int    `json:"orbit"`
	// Number of most recent pairs (0: all the pairs)
	Pairs int `json:"pairs"`
	// Search is used if no inventory is provided
	Search     *entities.Area   `json:"search,omitempty"`
	Data       common.PairAttrs `json:"data"`
	RetryCount int              `json:"retry_count"`
}

// Validate checks the campaign
func (c Campaign) Validate() error {
	if c.AOIID == "" {
		return fmt.Errorf("missing aoi")
	}
	if c.Orbit <= 0 {
		return fmt.Errorf("invalid orbit: %d", c.Orbit)
	}
	if len(c.Data.Swaths) == 0 {
		return fmt.Errorf("missing swaths")
	}
	return nil
}

// CatalogHandler adds the endpoints of the catalog and the creation of campaigns to the router
func (wf *Workflow) CatalogHandler(r *mux.Router) {
	if wf.catalog != nil {
		wf.catalog.AddHandler(r)
	}
	r.HandleFunc("/catalog/aoi", wf.CatalogPostAOIHandler).Methods("POST")
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

func loadCampaign(w http.ResponseWriter, req *http.Request) (Campaign, error) {
	campaign := Campaign{}
	campaignJSON, err := readField(req, campaignJSONField)
	if err != nil || len(campaignJSON) == 0 {
		w.WriteHeader(400)
		if err == nil {
			err = fmt.Errorf("missing required field: '%s' (application/json)", campaignJSONField)
		}
		fmt.Fprintf(w, "%v", err)
		return campaign, err
	}
	if err := json.Unmarshal(campaignJSON, &campaign); err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "%v\nJSON:\n%s", err, campaignJSON)
		return campaign, err
	}
	if err := campaign.Validate(); err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "%v", err)
		return campaign, err
	}
	return campaign, nil
}

func (wf *Workflow) findScenes(ctx context.Context, w http.ResponseWriter, req *http.Request, campaign Campaign) (entities.Scenes, error) {
	// Inventory provided
	if scenesJSON, err := readField(req, scenesJSONField); err == nil && len(scenesJSON) != 0 {
		scenes, err := catalog.Parse(scenesJSON)
		if err != nil {
			w.WriteHeader(400)
			fmt.Fprintf(w, "%v", err)
		}
		return scenes, err
	}
	// Or search the scenes
	if campaign.Search == nil || wf.catalog == nil {
		err := fmt.Errorf("missing required field: '%s' or search parameters", scenesJSONField)
		w.WriteHeader(400)
		fmt.Fprintf(w, "%v", err)
		return nil, err
	}
	area := *campaign.Search
	area.RelativeOrbit = campaign.Orbit
	scenes, err := wf.catalog.Inventory(ctx, area)
	if err != nil {
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
		return nil, err
	}
	return scenes, nil
}

// PairsToIngest returns the pairs of the campaign found in the inventory
func PairsToIngest(scenes entities.Scenes, campaign Campaign) ([]common.PairToIngest, error) {
	var pairs []common.PairToIngest
	for _, pair := range catalog.Pairs(scenes, campaign.Orbit, campaign.Pairs) {
		attrs, err := catalog.PairAttrs(scenes, pair, campaign.Data)
		if err != nil {
			return nil, fmt.Errorf("PairsToIngest.%w", err)
		}
		pairs = append(pairs, common.PairToIngest{Pair: pair, Data: attrs, RetryCount: campaign.RetryCount})
	}
	return pairs, nil
}

// CatalogPostAOIHandler creates the pairs of an orbit, given an inventory (field scenes) or search parameters, and queues them
func (wf *Workflow) CatalogPostAOIHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	campaign, err := loadCampaign(w, req)
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("wf.CatalogPostAOIHandler: %v", err)
		return
	}
	scenes, err := wf.findScenes(ctx, w, req, campaign)
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("wf.CatalogPostAOIHandler.%v", err)
		return
	}
	pairs, err := PairsToIngest(scenes, campaign)
	if err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "%v", err)
		return
	}

	// First, create AOI
	if err := wf.CreateAOI(ctx, campaign.AOIID); err != nil && !errors.As(err, &db.ErrAlreadyExists{}) {
		writeError(w, req, "wf.CatalogPostAOIHandler", err)
		return
	}

	// Then, create pairs
	ids, err := wf.IngestPairs(ctx, campaign.AOIID, pairs)
	if err != nil {
		writeError(w, req, "wf.CatalogPostAOIHandler", err)
		return
	}

	w.WriteHeader(200)
	fmt.Fprintf(w, "Processing of %d pairs in progress (%d already exist)\n", len(ids), len(pairs)-len(ids))
}
