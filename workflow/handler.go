package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/scottyhq/dinoSARaws/common"
	db "github.com/scottyhq/dinoSARaws/interface/database"
	"github.com/scottyhq/dinoSARaws/service/log"
	"go.uber.org/zap"
)

func (wf *Workflow) NewHandler() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/pair/{pair}", wf.GetPairHandler).Methods("GET")
	r.HandleFunc("/pair/{pair}/retry", wf.RetryPairHandler).Methods("PUT")
	r.HandleFunc("/pair/{pair}/fail", wf.FailPairHandler).Methods("PUT")
	r.HandleFunc("/pair/{pair}/force/{status}", wf.ForcePairStatusHandler).Methods("PUT")
	r.HandleFunc("/aois", wf.ListAOIsHandler).Methods("GET")
	r.HandleFunc("/aoi/{aoi}", wf.GetAOIStatusHandler).Methods("GET")
	r.HandleFunc("/aoi/{aoi}", wf.CreateAOIHandler).Methods("POST")
	r.HandleFunc("/aoi/{aoi}", wf.DeleteAOIHandler).Methods("DELETE")
	r.HandleFunc("/aoi/{aoi}/dot", wf.PrintDotHandler).Methods("GET")
	r.HandleFunc("/aoi/{aoi}/pair", wf.CreatePairHandler).Methods("POST")
	r.HandleFunc("/aoi/{aoi}/pairs", wf.ListPairsHandler).Methods("GET")
	r.HandleFunc("/aoi/{aoi}/pairs/{status}", wf.ListPairsHandler).Methods("GET")
	r.HandleFunc("/aoi/{aoi}/retry", wf.RetryAOIHandler).Methods("PUT")
	r.HandleFunc("/aoi/{aoi}/retry/{force}", wf.RetryAOIHandler).Methods("PUT")
	return r
}

func ifElse(cond bool, valtrue, valfalse int) int {
	if cond {
		return valtrue
	}
	return valfalse
}

func pairID(w http.ResponseWriter, req *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(req)["pair"])
	if err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "invalid pair id: %v", err)
		return 0, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, req *http.Request, prefix string, err error) {
	switch {
	case errors.As(err, &db.ErrNotFound{}):
		w.WriteHeader(404)
	case errors.As(err, &db.ErrAlreadyExists{}):
		w.WriteHeader(409)
	default:
		log.Logger(req.Context()).Sugar().Warnf("%s: %v", prefix, err)
		w.WriteHeader(500)
	}
	fmt.Fprintf(w, "%v", err)
}

// GetPairHandler retrieves a pair
func (wf *Workflow) GetPairHandler(w http.ResponseWriter, req *http.Request) {
	id, ok := pairID(w, req)
	if !ok {
		return
	}
	pair, err := wf.Pair(req.Context(), id)
	if err != nil {
		writeError(w, req, "wf.pair", err)
		return
	}
	json.NewEncoder(w).Encode(pair)
}

// RetryPairHandler retries the pair if its status is RETRY
func (wf *Workflow) RetryPairHandler(w http.ResponseWriter, req *http.Request) {
	id, ok := pairID(w, req)
	if !ok {
		return
	}
	emptyMessage := ""
	done, err := wf.UpdatePairStatus(req.Context(), id, common.StatusPENDING, &emptyMessage, nil, false)
	if err != nil {
		writeError(w, req, "wf.RetryPairHandler", err)
		return
	}
	w.WriteHeader(ifElse(done, 200, 403))
}

// FailPairHandler tags the pair as FAILED
func (wf *Workflow) FailPairHandler(w http.ResponseWriter, req *http.Request) {
	id, ok := pairID(w, req)
	if !ok {
		return
	}
	done, err := wf.UpdatePairStatus(req.Context(), id, common.StatusFAILED, nil, nil, false)
	if err != nil {
		writeError(w, req, "wf.FailPairHandler", err)
		return
	}
	w.WriteHeader(ifElse(done, 200, 403))
}

// ForcePairStatusHandler sets the pair status
func (wf *Workflow) ForcePairStatusHandler(w http.ResponseWriter, req *http.Request) {
	status, err := common.StatusString(mux.Vars(req)["status"])
	if err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "%v", err)
		return
	}
	id, ok := pairID(w, req)
	if !ok {
		return
	}
	done, err := wf.UpdatePairStatus(req.Context(), id, status, nil, nil, true)
	if err != nil {
		writeError(w, req, "wf.ForcePairStatusHandler", err)
		return
	}
	w.WriteHeader(ifElse(done, 200, 403))
}

// PrintDotHandler returns a xdot-representation of the pairs of the aoi
func (wf *Workflow) PrintDotHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	aoi := mux.Vars(req)["aoi"]
	err := wf.Dot(ctx, aoi, w)
	if err != nil {
		log.Logger(ctx).Error("print dot", zap.Error(err))
	}
}

// ListAOIsHandler lists the aois (?pattern=)
func (wf *Workflow) ListAOIsHandler(w http.ResponseWriter, req *http.Request) {
	aois, err := wf.AOIs(req.Context(), req.URL.Query().Get("pattern"))
	if err != nil {
		writeError(w, req, "wf.aois", err)
		return
	}
	json.NewEncoder(w).Encode(aois)
}

// GetAOIStatusHandler returns infos on the aoi
func (wf *Workflow) GetAOIStatusHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	aoi := mux.Vars(req)["aoi"]
	status, err := wf.PairsStatus(ctx, aoi)
	if err != nil {
		writeError(w, req, "wf.PairsStatus", err)
		return
	}
	pairs, err := wf.Pairs(ctx, aoi, "", 0, -1)
	if err != nil {
		writeError(w, req, "wf.pairs", err)
		return
	}
	from, to := "", ""
	for _, p := range pairs {
		if from == "" || p.Secondary < from {
			from = p.Secondary
		}
		if p.Main > to {
			to = p.Main
		}
	}

	w.WriteHeader(200)
	fmt.Fprintf(w, "Pairs:\n  new:     %d\n  pending: %d\n  done:    %d\n  retry:   %d\n  failed:  %d\n  Total:   %d\n",
		status.New, status.Pending, status.Done, status.Retry, status.Failed, status.Total())
	fmt.Fprintf(w, "\n  From: %s\n  To:   %s\n", from, to)
}

// CreateAOIHandler creates a new aoi
func (wf *Workflow) CreateAOIHandler(w http.ResponseWriter, req *http.Request) {
	if err := wf.CreateAOI(req.Context(), mux.Vars(req)["aoi"]); err != nil {
		writeError(w, req, "create", err)
		return
	}
	w.WriteHeader(204)
}

// DeleteAOIHandler deletes an aoi and its pairs
func (wf *Workflow) DeleteAOIHandler(w http.ResponseWriter, req *http.Request) {
	if err := wf.DeleteAOI(req.Context(), mux.Vars(req)["aoi"]); err != nil {
		writeError(w, req, "delete", err)
		return
	}
	w.WriteHeader(204)
}

// CreatePairHandler creates a new pair and queues it
func (wf *Workflow) CreatePairHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	pair := common.PairToIngest{}
	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&pair); err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "%v", err)
		return
	}
	nid, err := wf.IngestPair(ctx, mux.Vars(req)["aoi"], pair)
	if err != nil {
		writeError(w, req, "ingest", err)
		return
	}
	fmt.Fprintf(w, "{\"id\":%d}", nid)
}

// ListPairsHandler lists the pairs of the aoi
// If status is provided, filter only the pairs with the given status
func (wf *Workflow) ListPairsHandler(w http.ResponseWriter, req *http.Request) {
	status := mux.Vars(req)["status"]
	if status != "" {
		s, err := common.StatusString(status)
		if err != nil {
			w.WriteHeader(400)
			fmt.Fprintf(w, "%v", err)
			return
		}
		status = s.String()
	}
	pairs, err := wf.Pairs(req.Context(), mux.Vars(req)["aoi"], status, 0, -1)
	if err != nil {
		writeError(w, req, "wf.pairs", err)
		return
	}
	json.NewEncoder(w).Encode(pairs)
}

// RetryAOIHandler retries all the pairs with the status 'RETRY' (and also 'PENDING' if force=true)
func (wf *Workflow) RetryAOIHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	pairs, err := wf.Pairs(ctx, mux.Vars(req)["aoi"], "", 0, -1)
	if err != nil {
		writeError(w, req, "wf.pairs", err)
		return
	}
	force := mux.Vars(req)["force"] == "force"
	nbPairs := 0
	emptyMessage := ""
	for _, pair := range pairs {
		if pair.Status == common.StatusRETRY || (force && pair.Status == common.StatusPENDING) {
			done, err := wf.UpdatePairStatus(ctx, pair.ID, common.StatusPENDING, &emptyMessage, nil, force)
			if err != nil {
				writeError(w, req, "wf.retryaoihandler", err)
				return
			}
			if done {
				nbPairs++
			}
		}
	}
	if nbPairs == 0 {
		w.WriteHeader(204)
	} else {
		json.NewEncoder(w).Encode(struct{ Pairs int }{nbPairs})
	}
}
