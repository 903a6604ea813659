package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/kwv/heatmesh/heat"
)

const (
	// maxReduceBody caps POST /reduce payloads
	maxReduceBody = 16 << 20

	// maxReducePoints caps the input of one POST /reduce. Canopy cost grows
	// with the square of the input.
	maxReducePoints = 1 << 15
)

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(store *heat.PointStore, config *heat.Config) http.Handler {
	mux := http.NewServeMux()

	var renderCfg heat.RenderConfig
	if config != nil {
		renderCfg = config.Render
	}

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		status := struct {
			Status     string    `json:"status"`
			Timestamp  time.Time `json:"timestamp"`
			Points     int       `json:"points"`
			Sources    []string  `json:"sources"`
			Generation uint64    `json:"generation"`
		}{
			Status:     "ok",
			Timestamp:  time.Now(),
			Points:     store.Surface().Len(),
			Sources:    store.Sources(),
			Generation: store.Surface().Generation(),
		}
		writeJSON(w, http.StatusOK, status)
	})

	// Reduced point set as JSON
	mux.HandleFunc("/points.json", func(w http.ResponseWriter, r *http.Request) {
		data, err := heat.EncodePointsJSON(store.Surface().Points())
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to encode points: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if _, err := w.Write(data); err != nil {
			log.Printf("Error writing points: %v", err)
		}
	})

	// Reduced point set as GeoJSON on the ground plane
	mux.HandleFunc("/points.geojson", func(w http.ResponseWriter, r *http.Request) {
		data, err := heat.MarshalGeoJSON(store.Surface().Points(), store.Params().Plane)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to encode GeoJSON: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("Cache-Control", "no-cache")
		if _, err := w.Write(data); err != nil {
			log.Printf("Error writing GeoJSON: %v", err)
		}
	})

	// Last reduction result
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		result, ok := store.LastResult()
		if !ok {
			http.Error(w, "No reduction yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	// Raster preview
	mux.HandleFunc("/preview.png", func(w http.ResponseWriter, r *http.Request) {
		if store.Surface().Len() == 0 {
			http.Error(w, "No points available", http.StatusServiceUnavailable)
			return
		}
		renderer := heat.NewPreviewRenderer(previewLayers(store), store.Params().Plane, renderCfg)
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.WritePNG(w); err != nil {
			log.Printf("Error encoding preview PNG: %v", err)
		}
	})

	// Vector preview
	mux.HandleFunc("/preview.svg", func(w http.ResponseWriter, r *http.Request) {
		if store.Surface().Len() == 0 {
			http.Error(w, "No points available", http.StatusServiceUnavailable)
			return
		}
		renderer := heat.NewVectorRenderer(previewLayers(store), store.Params().Plane, renderCfg)
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.RenderToSVG(w); err != nil {
			log.Printf("Error encoding preview SVG: %v", err)
		}
	})

	// One-shot reduction of a posted point set
	mux.HandleFunc("/reduce", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		params, err := paramsFromQuery(store.Params(), r.URL.Query())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := params.CheckCapacity(heat.MaxPoints); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxReduceBody+1))
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to read body: %v", err), http.StatusBadRequest)
			return
		}
		if len(body) > maxReduceBody {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}

		points, err := heat.ParsePointsJSON(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(points) > maxReducePoints {
			http.Error(w, fmt.Sprintf("Too many points: %d (limit %d)", len(points), maxReducePoints), http.StatusRequestEntityTooLarge)
			return
		}

		reduced, err := heat.Reduce(points, params)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("[HTTP] /reduce %s: %d -> %d points", params.Strategy, len(points), len(reduced))

		set := heat.ReducedSet{
			Result: heat.ReductionResult{
				Strategy:     params.Strategy,
				Reduced:      true,
				InputCount:   len(points),
				OutputCount:  len(reduced),
				InputWeight:  heat.TotalWeight(points),
				OutputWeight: heat.TotalWeight(reduced),
				Timestamp:    time.Now(),
			},
			Points: reduced,
		}
		if set.Points == nil {
			set.Points = []heat.WeightedPoint{}
		}

		// Only canopy can produce more than the surface holds.
		status := http.StatusOK
		if !params.Strategy.Bounded() && len(reduced) > heat.MaxPoints {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, set)
	})

	// Drop a source's points and refresh the surface without them
	mux.HandleFunc("DELETE /sources/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !slices.Contains(store.Sources(), id) {
			http.Error(w, fmt.Sprintf("Unknown source %q", id), http.StatusNotFound)
			return
		}
		store.ClearSource(id)
		log.Printf("[HTTP] cleared source %s", id)

		if _, err := store.Refresh(); err != nil {
			http.Error(w, fmt.Sprintf("Refresh failed: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Removed string   `json:"removed"`
			Sources []string `json:"sources"`
			Points  int      `json:"points"`
		}{
			Removed: id,
			Sources: store.Sources(),
			Points:  store.Surface().Len(),
		})
	})

	return mux
}

// paramsFromQuery overrides base with strategy, maxCount, maxDistance, plane
// and planar query parameters
func paramsFromQuery(base heat.Params, q url.Values) (heat.Params, error) {
	o := paramOverrides{
		Strategy: q.Get("strategy"),
		MaxCount: -1,
		Plane:    q.Get("plane"),
	}
	if v := q.Get("maxCount"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return base, fmt.Errorf("invalid maxCount %q", v)
		}
		if n < 0 {
			return base, fmt.Errorf("maxCount must not be negative, got %d", n)
		}
		o.MaxCount = n
	}
	if v := q.Get("maxDistance"); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return base, fmt.Errorf("invalid maxDistance %q", v)
		}
		if !(d > 0) {
			return base, fmt.Errorf("maxDistance must be positive, got %g", d)
		}
		o.MaxDistance = d
	}
	if v := q.Get("planar"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return base, fmt.Errorf("invalid planar %q", v)
		}
		o.Planar = &b
	}
	return o.apply(base)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
