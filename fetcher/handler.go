package fetcher

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/airbusgeo/stac-fetcher/service/log"
	"github.com/gorilla/mux"
)

// AddHandler registers the routes of the fetcher (and /metrics if the metrics are configured)
func (f *Fetcher) AddHandler(r *mux.Router) {
	r.HandleFunc("/download/data", f.DataHandler).Methods("POST")
	r.HandleFunc("/download/geometries", f.GeometriesHandler).Methods("POST")
	if f.Metrics != nil {
		r.Handle("/metrics", f.Metrics.Handler()).Methods("GET")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, req *http.Request, err error) {
	s := ToStructured(err)
	if s.Kind == KindInternal {
		log.Logger(req.Context()).Sugar().Warnf("%s: %v", req.URL.Path, err)
	}
	if err := writeJSON(w, s.HTTPStatus(), s); err != nil {
		log.Logger(req.Context()).Sugar().Warnf("%s: %v", req.URL.Path, err)
	}
}

func decode(req *http.Request, v interface{}) error {
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		return &ErrInvalidRequest{Reason: fmt.Sprintf("malformed json: %v", err)}
	}
	return nil
}

// DataHandler downloads the data of a DataRequest posted as json and returns the FetchResult
func (f *Fetcher) DataHandler(w http.ResponseWriter, req *http.Request) {
	var r DataRequest
	if err := decode(req, &r); err != nil {
		writeError(w, req, err)
		return
	}
	res, err := f.DownloadData(req.Context(), r)
	if err != nil {
		writeError(w, req, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, res); err != nil {
		log.Logger(req.Context()).Sugar().Warnf("DataHandler.%v", err)
	}
}

// GeometriesHandler downloads the features of a GeometriesRequest posted as json and returns the FetchResult
func (f *Fetcher) GeometriesHandler(w http.ResponseWriter, req *http.Request) {
	var r GeometriesRequest
	if err := decode(req, &r); err != nil {
		writeError(w, req, err)
		return
	}
	res, err := f.DownloadGeometries(req.Context(), r)
	if err != nil {
		writeError(w, req, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, res); err != nil {
		log.Logger(req.Context()).Sugar().Warnf("GeometriesHandler.%v", err)
	}
}
