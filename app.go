package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/kwv/heatmesh/heat"
)

const (
	pointFilePrefix = "points-"
	reducedCache    = ".reduced-cache.json"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *heat.Config
	Store      *heat.PointStore
	MQTTClient *heat.MQTTClient
	Publisher  *heat.Publisher
	Out        io.Writer

	// CLI Flags (effectively dependencies)
	DataDir      string
	ConfigFile   string
	InputFile    string
	OutputFile   string
	OutputFormat string
	RenderFormat string
	VectorFormat string
	HttpPort     int
	MqttMode     bool
	HttpMode     bool
	Overrides    paramOverrides

	mu sync.RWMutex // guards Publisher once the service is running
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		Store:      heat.NewPointStore(heat.DefaultParams()),
		Out:        os.Stdout,
		DataDir:    ".",
		ConfigFile: "config.yaml",
		Overrides:  paramOverrides{MaxCount: -1},
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.DataDir = opts.DataDir
	a.ConfigFile = opts.ConfigFile
	a.InputFile = opts.InputFile
	a.OutputFile = opts.OutputFile
	a.OutputFormat = opts.OutputFormat
	a.RenderFormat = opts.RenderFormat
	a.VectorFormat = opts.VectorFormat
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
	a.Overrides = paramOverrides{
		Strategy:    opts.Strategy,
		MaxCount:    opts.MaxCount,
		MaxDistance: opts.MaxDistance,
		Plane:       opts.Plane,
	}
	if opts.Planar {
		planar := true
		a.Overrides.Planar = &planar
	}
}

// paramOverrides replaces fields of a base heat.Params. Empty strings, a
// negative MaxCount, a zero MaxDistance and a nil Planar keep the base.
type paramOverrides struct {
	Strategy    string
	MaxCount    int
	MaxDistance float64
	Plane       string
	Planar      *bool
}

func (o paramOverrides) apply(base heat.Params) (heat.Params, error) {
	p := base
	if o.Strategy != "" {
		s, err := heat.ParseStrategy(o.Strategy)
		if err != nil {
			return base, err
		}
		p.Strategy = s
	}
	if o.MaxCount >= 0 {
		p.MaxCount = o.MaxCount
	}
	if o.MaxDistance != 0 {
		p.MaxDistance = o.MaxDistance
	}
	if o.Plane != "" {
		pl, err := heat.ParsePlane(o.Plane)
		if err != nil {
			return base, err
		}
		p.Plane = pl
	}
	if o.Planar != nil {
		p.Planar = *o.Planar
	}
	if err := p.Validate(); err != nil {
		return base, err
	}
	return p, nil
}

// params returns the configured reduction parameters with CLI overrides
func (a *App) params() (heat.Params, error) {
	base := heat.DefaultParams()
	if a.Config != nil {
		base = a.Config.Reduction
	}
	return a.Overrides.apply(base)
}

// tryLoadConfig loads the config file if it exists. Offline modes work
// without one.
func (a *App) tryLoadConfig() {
	if a.Config != nil {
		return
	}
	path := a.resolveConfigPath()
	if _, err := os.Stat(path); err != nil {
		return
	}
	config, err := heat.LoadConfig(path)
	if err != nil {
		log.Printf("Warning: ignoring config %s: %v", path, err)
		return
	}
	a.Config = config
}

// resolveConfigPath looks for the default config inside --data-dir
func (a *App) resolveConfigPath() string {
	if a.DataDir != "." && a.ConfigFile == "config.yaml" {
		return filepath.Join(a.DataDir, "config.yaml")
	}
	return a.ConfigFile
}

func (a *App) renderConfig() heat.RenderConfig {
	if a.Config != nil {
		return a.Config.Render
	}
	return heat.RenderConfig{}
}

// sourceName derives a source ID from a point file name
func sourceName(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.TrimPrefix(name, pointFilePrefix)
}

// inputFiles returns --input, or every point file in the data directory
func (a *App) inputFiles() ([]string, error) {
	if a.InputFile != "" {
		return []string{a.InputFile}, nil
	}

	files, err := filepath.Glob(filepath.Join(a.DataDir, pointFilePrefix+"*.json"))
	if err != nil {
		return nil, fmt.Errorf("finding point files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s*.json files found in %s", pointFilePrefix, a.DataDir)
	}
	sort.Strings(files)
	return files, nil
}

// loadStore parses every input file into the store, one source per file
func (a *App) loadStore() error {
	files, err := a.inputFiles()
	if err != nil {
		return err
	}
	for _, file := range files {
		points, err := heat.ParsePointsFile(file)
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		a.Store.Replace(sourceName(file), points)
	}
	return nil
}

// RunSummary prints a summary of every input file
func (a *App) RunSummary() error {
	files, err := a.inputFiles()
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(a.Out, "Found %d point file(s)\n\n", len(files))
	for _, file := range files {
		a.printSummary(file)
	}
	return nil
}

func (a *App) printSummary(path string) {
	_, _ = fmt.Fprintf(a.Out, "=== %s ===\n", sourceName(path))
	_, _ = fmt.Fprintf(a.Out, "File: %s\n", path)

	points, err := heat.ParsePointsFile(path)
	if err != nil {
		_, _ = fmt.Fprintf(a.Out, "ERROR: %v\n\n", err)
		return
	}

	s := heat.Summarize(points)
	_, _ = fmt.Fprintf(a.Out, "Points: %d\n", s.Count)
	_, _ = fmt.Fprintf(a.Out, "Total Weight: %.4g\n", s.TotalWeight)
	if s.Count > 0 {
		_, _ = fmt.Fprintf(a.Out, "Weight Range: %.4g .. %.4g\n", s.MinWeight, s.MaxWeight)
		_, _ = fmt.Fprintf(a.Out, "Bounds: (%.2f, %.2f, %.2f) .. (%.2f, %.2f, %.2f)\n",
			s.Bounds.Min.X, s.Bounds.Min.Y, s.Bounds.Min.Z,
			s.Bounds.Max.X, s.Bounds.Max.Y, s.Bounds.Max.Z)
		c := s.Bounds.Center()
		_, _ = fmt.Fprintf(a.Out, "Center: (%.2f, %.2f, %.2f)\n", c.X, c.Y, c.Z)
	}
	if s.Count > heat.MaxPoints {
		_, _ = fmt.Fprintf(a.Out, "Exceeds render capacity (%d) by %d\n", heat.MaxPoints, s.Count-heat.MaxPoints)
	}
	_, _ = fmt.Fprintln(a.Out)
}

// RunReduce reduces the input points once and writes the result
func (a *App) RunReduce() error {
	a.tryLoadConfig()
	params, err := a.params()
	if err != nil {
		return err
	}
	if err := a.loadStore(); err != nil {
		return err
	}

	all := a.Store.All()
	start := time.Now()
	reduced, err := heat.Reduce(all, params)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.Out, "%s: %d -> %d points, weight %.4g -> %.4g (%v)\n",
		params.Strategy, len(all), len(reduced),
		heat.TotalWeight(all), heat.TotalWeight(reduced), time.Since(start).Round(time.Microsecond))
	if len(reduced) > heat.MaxPoints {
		log.Printf("[REDUCE] warning: %d points exceed render capacity %d", len(reduced), heat.MaxPoints)
	}

	output := a.OutputFile
	if output == "" {
		output = "reduced.json"
	}

	var data []byte
	if a.outputIsGeoJSON(output) {
		data, err = heat.MarshalGeoJSON(reduced, params.Plane)
	} else {
		data, err = heat.EncodePointsJSON(reduced)
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}
	_, _ = fmt.Fprintf(a.Out, "Saved %s\n", output)
	return nil
}

func (a *App) outputIsGeoJSON(output string) bool {
	switch strings.ToLower(a.OutputFormat) {
	case "geojson":
		return true
	case "json":
		return false
	}
	return strings.EqualFold(filepath.Ext(output), ".geojson")
}

// previewLayers returns one layer per source when the surface holds the raw
// points, and a single layer once they have been reduced or when only a
// cached set is available.
func previewLayers(store *heat.PointStore) []heat.Layer {
	result, ok := store.LastResult()
	if (ok && result.Reduced) || (!store.HasPoints() && store.Surface().Len() > 0) {
		return []heat.Layer{{
			Name:   fmt.Sprintf("%s of %d", result.Strategy, result.InputCount),
			Points: store.Surface().Points(),
			Color:  "#D7301F",
		}}
	}

	var layers []heat.Layer
	for _, id := range store.Sources() {
		layers = append(layers, heat.Layer{Name: id, Points: store.SourcePoints(id), Color: store.Color(id)})
	}
	return layers
}

// RunRender reduces the input points and writes a preview image
func (a *App) RunRender() error {
	a.tryLoadConfig()
	params, err := a.params()
	if err != nil {
		return err
	}
	a.applySourceColors()
	if err := a.loadStore(); err != nil {
		return err
	}
	if _, err := a.Store.SetParams(params); err != nil {
		return err
	}

	layers := previewLayers(a.Store)
	renderCfg := a.renderConfig()

	switch a.RenderFormat {
	case "raster", "":
		return a.renderRaster(layers, params.Plane, renderCfg, a.outputPath("preview.png", ".png"))
	case "vector":
		return a.renderVector(layers, params.Plane, renderCfg)
	case "both":
		if err := a.renderRaster(layers, params.Plane, renderCfg, a.outputPath("preview.png", ".png")); err != nil {
			return err
		}
		return a.renderVector(layers, params.Plane, renderCfg)
	default:
		return fmt.Errorf("unknown render format %q (want raster, vector or both)", a.RenderFormat)
	}
}

// outputPath returns --output with its extension replaced by ext, or def
func (a *App) outputPath(def, ext string) string {
	if a.OutputFile == "" {
		return def
	}
	return strings.TrimSuffix(a.OutputFile, filepath.Ext(a.OutputFile)) + ext
}

func (a *App) renderRaster(layers []heat.Layer, plane heat.Plane, cfg heat.RenderConfig, path string) error {
	renderer := heat.NewPreviewRenderer(layers, plane, cfg)
	if err := renderer.SavePNG(path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	_, _ = fmt.Fprintf(a.Out, "Saved %s\n", path)
	return nil
}

func (a *App) renderVector(layers []heat.Layer, plane heat.Plane, cfg heat.RenderConfig) error {
	renderer := heat.NewVectorRenderer(layers, plane, cfg)

	var path string
	var write func(io.Writer) error
	switch a.VectorFormat {
	case "svg", "":
		path, write = a.outputPath("preview.svg", ".svg"), renderer.RenderToSVG
	case "png":
		path, write = a.outputPath("preview-vector.png", "-vector.png"), renderer.RenderToPNG
	default:
		return fmt.Errorf("unknown vector format %q (want svg or png)", a.VectorFormat)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if err := write(f); err != nil {
		return fmt.Errorf("rendering %s: %w", path, err)
	}
	_, _ = fmt.Fprintf(a.Out, "Saved %s\n", path)
	return nil
}

// RunCompare runs every strategy over the input and prints a table
func (a *App) RunCompare() error {
	a.tryLoadConfig()
	base, err := a.params()
	if err != nil {
		return err
	}
	if err := a.loadStore(); err != nil {
		return err
	}
	all := a.Store.All()

	_, _ = fmt.Fprintf(a.Out, "Input: %d points, weight %.4g\n\n", len(all), heat.TotalWeight(all))

	tw := tabwriter.NewWriter(a.Out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STRATEGY\tPOINTS\tWEIGHT\tFITS\tSINGLETONS\tTIME")
	for _, s := range heat.Strategies() {
		p := base
		p.Strategy = s
		if s == heat.StrategyCanopy && !(p.MaxDistance > 0) {
			_, _ = fmt.Fprintf(tw, "%s\t-\t-\t-\t-\tskipped (set --max-distance)\n", s)
			continue
		}

		start := time.Now()
		out, err := heat.Reduce(all, p)
		if err != nil {
			return err
		}
		elapsed := time.Since(start)

		fits := "yes"
		if len(out) > heat.MaxPoints {
			fits = "no"
		}
		singletons := "-"
		if s == heat.StrategyCanopy {
			opt := heat.WithVolumetricDistance()
			if p.Planar {
				opt = heat.WithPlanarDistance(p.Plane)
			}
			singletons = fmt.Sprint(heat.CanopySingletons(all, p.MaxDistance, opt))
		}
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%.4g\t%s\t%s\t%v\n", s, len(out), heat.TotalWeight(out), fits, singletons, elapsed.Round(time.Microsecond))
	}
	return tw.Flush()
}

func (a *App) applySourceColors() {
	if a.Config == nil {
		return
	}
	for _, sc := range a.Config.Sources {
		if sc.Color != "" {
			a.Store.SetColor(sc.ID, sc.Color)
		}
	}
}

// handlePoints is the MQTT message handler: it appends the batch, refreshes
// the surface and publishes the result.
func (a *App) handlePoints(sourceID string, points []heat.WeightedPoint, err error) {
	if err != nil {
		log.Printf("Error receiving points for %s: %v", sourceID, err)
		return
	}
	if len(points) == 0 {
		return
	}

	a.Store.Append(sourceID, points)
	a.refreshAndPublish(sourceID)
}

func (a *App) refreshAndPublish(sourceID string) {
	result, err := a.Store.Refresh()
	if err != nil {
		if errors.Is(err, heat.ErrCapacityExceeded) {
			log.Printf("[REDUCE] %s: keeping previous set: %v", sourceID, err)
		} else {
			log.Printf("[REDUCE] %s: %v", sourceID, err)
		}
		return
	}
	log.Printf("[REDUCE] %s: %d -> %d points (%s)", sourceID, result.InputCount, result.OutputCount, result.Strategy)

	a.mu.RLock()
	publisher := a.Publisher
	a.mu.RUnlock()
	if publisher != nil {
		if err := publisher.PublishReduced(a.Store.Surface().Points(), result); err != nil {
			log.Printf("Error publishing reduced set: %v", err)
		}
	}
}

// fetchAPISources pulls the current points of every source with an apiUrl
func (a *App) fetchAPISources(ctx context.Context, opts ...heat.FetchOption) {
	if a.Config == nil {
		return
	}
	for _, sc := range a.Config.Sources {
		if !sc.HasAPI() {
			continue
		}
		sourceOpts := append([]heat.FetchOption{heat.WithPlane(a.Store.Params().Plane)}, opts...)
		points, err := heat.FetchPointsFromAPIWithContext(ctx, *sc.ApiURL, sourceOpts...)
		if err != nil {
			log.Printf("[HTTP] fetching %s: %v", sc.ID, err)
			continue
		}
		a.Store.Replace(sc.ID, points)
		log.Printf("[HTTP] fetched %d points for %s", len(points), sc.ID)
	}
}

// loadInitialPoints returns the points of every point file in dataDir keyed
// by source ID. Files for sources missing from the config are still loaded
// but logged, since nothing will ever update them.
func (a *App) loadInitialPoints(dataDir string) map[string][]heat.WeightedPoint {
	sources := make(map[string][]heat.WeightedPoint)

	files, err := filepath.Glob(filepath.Join(dataDir, pointFilePrefix+"*.json"))
	if err != nil {
		return sources
	}

	for _, file := range files {
		name := sourceName(file)
		points, err := heat.ParsePointsFile(file)
		if err != nil {
			log.Printf("Warning: Failed to load %s: %v", name, err)
			continue
		}
		if a.Config != nil && a.Config.GetSourceByID(name) == nil {
			log.Printf("Warning: %s has no source entry in config; its points are static", name)
		}
		sources[name] = points
	}
	return sources
}

// RunService runs the MQTT and/or HTTP service until interrupted
func (a *App) RunService() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.serve(ctx)
}

// serve starts the service and blocks until ctx is done
func (a *App) serve(ctx context.Context) error {
	_, _ = fmt.Fprintln(a.Out, "Starting heatmesh service...")

	// Config is required in service mode
	resolvedConfig := a.resolveConfigPath()
	config, err := heat.LoadConfig(resolvedConfig)
	if err != nil {
		return fmt.Errorf("failed to load config: %w (looked at %s)", err, resolvedConfig)
	}
	a.Config = config
	log.Printf("Loaded config from %s", resolvedConfig)

	params, err := a.params()
	if err != nil {
		return err
	}
	a.Store = heat.NewPointStoreWithCache(params, filepath.Join(a.DataDir, reducedCache))
	a.applySourceColors()

	initial := a.loadInitialPoints(a.DataDir)
	for id, points := range initial {
		a.Store.Replace(id, points)
	}
	if len(initial) > 0 {
		_, _ = fmt.Fprintf(a.Out, "Loaded %d initial point files\n", len(initial))
	}
	a.fetchAPISources(ctx)
	if a.Store.HasPoints() {
		a.refreshAndPublish("startup")
	}

	if a.MqttMode {
		mqttClient, err := heat.InitMQTT(config, a.handlePoints)
		if err != nil {
			return fmt.Errorf("failed to initialize MQTT: %w", err)
		}
		if mqttClient == nil {
			return fmt.Errorf("MQTT broker not configured in config.yaml")
		}
		a.mu.Lock()
		a.MQTTClient = mqttClient
		a.Publisher = heat.NewPublisher(mqttClient.GetClient(), config.MQTT.PublishPrefix)
		a.mu.Unlock()
		_, _ = fmt.Fprintln(a.Out, "MQTT publisher initialized")
	}

	var server *http.Server
	if a.HttpMode {
		server = &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%d", a.HttpPort),
			Handler:           newHTTPServer(a.Store, a.Config),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("[HTTP] Starting server on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[HTTP] Server error: %v", err)
			}
		}()
	}

	a.printServiceInfo()

	<-ctx.Done()

	_, _ = fmt.Fprintln(a.Out, "\nShutting down service...")
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[HTTP] shutdown: %v", err)
		}
	}
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	_, _ = fmt.Fprintln(a.Out, "Service stopped")
	return nil
}

func (a *App) printServiceInfo() {
	out := a.Out
	_, _ = fmt.Fprintln(out, "\nService Running")
	_, _ = fmt.Fprintln(out, "===============")

	params := a.Store.Params()
	_, _ = fmt.Fprintf(out, "\nReduction: %s (maxCount %d, maxDistance %g, plane %s)\n",
		params.Strategy, params.MaxCount, params.MaxDistance, params.Plane)

	if a.MqttMode {
		_, _ = fmt.Fprintln(out, "\nMQTT:")
		_, _ = fmt.Fprintln(out, "  Subscribed topics:")
		for _, sc := range a.Config.Sources {
			if sc.Topic != "" {
				_, _ = fmt.Fprintf(out, "    - %s (%s)\n", sc.Topic, sc.ID)
			}
		}
		_, _ = fmt.Fprintf(out, "  Publishing to: %s/reduced and %s/stats\n", a.Publisher.Prefix(), a.Publisher.Prefix())
	}

	if a.HttpMode {
		_, _ = fmt.Fprintf(out, "\nHTTP endpoints (port %d):\n", a.HttpPort)
		_, _ = fmt.Fprintln(out, "  GET  /health          - Health check")
		_, _ = fmt.Fprintln(out, "  GET  /points.json     - Reduced point set")
		_, _ = fmt.Fprintln(out, "  GET  /points.geojson  - Reduced point set as GeoJSON")
		_, _ = fmt.Fprintln(out, "  GET  /stats           - Last reduction result")
		_, _ = fmt.Fprintln(out, "  GET  /preview.png     - Raster preview")
		_, _ = fmt.Fprintln(out, "  GET  /preview.svg     - Vector preview")
		_, _ = fmt.Fprintln(out, "  POST /reduce          - Reduce a posted point set")
	}

	_, _ = fmt.Fprintln(out, "\nPress Ctrl+C to stop")
}
