package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds all command line options
type AppOptions struct {
	ConfigFile string
	InputFile  string
	OutputFile string
	DataDir    string

	// Reduction overrides; zero values keep the configured parameters
	Strategy    string
	MaxCount    int
	MaxDistance float64
	Plane       string
	Planar      bool

	RenderFormat string
	VectorFormat string
	OutputFormat string
	HttpPort     int

	SummaryOnly bool
	ReduceOnly  bool
	RenderOnly  bool
	Compare     bool
	MqttMode    bool
	HttpMode    bool
}

// Runner is the set of modes the command line can select
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunSummary() error
	RunReduce() error
	RunRender() error
	RunCompare() error
	RunService() error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatal(err)
	}
}

// run parses args and dispatches to the selected mode of app
func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("heatmesh", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.InputFile, "input", "", "Point file to process (default: all points-*.json in --data-dir)")
	fs.StringVar(&opts.OutputFile, "output", "", "Output file for --reduce and --render modes")
	fs.StringVar(&opts.DataDir, "data-dir", ".", "Directory containing point files and caches")
	fs.BoolVar(&opts.SummaryOnly, "summary", false, "Summarize point files and exit")
	fs.BoolVar(&opts.ReduceOnly, "reduce", false, "Reduce points and write the result")
	fs.BoolVar(&opts.RenderOnly, "render", false, "Render a preview of the reduced points and exit")
	fs.BoolVar(&opts.Compare, "compare", false, "Run every reduction strategy and print the results")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Run MQTT service mode for live point ingestion")
	fs.BoolVar(&opts.HttpMode, "http", false, "Enable HTTP server for points and previews")
	fs.IntVar(&opts.HttpPort, "http-port", 8080, "HTTP server port")
	// Reduction flags
	fs.StringVar(&opts.Strategy, "strategy", "", "Reduction strategy: grid, canopy, average or decimate")
	fs.IntVar(&opts.MaxCount, "max-count", -1, "Maximum output points for grid, average and decimate")
	fs.Float64Var(&opts.MaxDistance, "max-distance", 0, "Merge distance for canopy")
	fs.StringVar(&opts.Plane, "plane", "", "Ground plane: xz, xy or yz")
	fs.BoolVar(&opts.Planar, "planar", false, "Measure canopy distance on the ground plane only")
	// Output flags
	fs.StringVar(&opts.OutputFormat, "out-format", "", "Reduce output format: json or geojson (default: from --output extension)")
	fs.StringVar(&opts.RenderFormat, "format", "raster", "Render format: raster, vector, or both")
	fs.StringVar(&opts.VectorFormat, "vector-format", "svg", "Vector output format: svg or png")

	if err := fs.Parse(args); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "heatmesh version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.SummaryOnly:
		return app.RunSummary()
	case opts.ReduceOnly:
		return app.RunReduce()
	case opts.RenderOnly:
		return app.RunRender()
	case opts.Compare:
		return app.RunCompare()
	case opts.MqttMode || opts.HttpMode:
		return app.RunService()
	}

	_, _ = fmt.Fprintln(out, "heatmesh service starting...")
	_, _ = fmt.Fprintln(out, "Use --summary to inspect point files")
	_, _ = fmt.Fprintln(out, "Use --reduce to reduce points to --output (json or geojson)")
	_, _ = fmt.Fprintln(out, "Use --render to output a preview PNG or SVG")
	_, _ = fmt.Fprintln(out, "Use --compare to run every strategy side by side")
	_, _ = fmt.Fprintln(out, "Use --mqtt to ingest points from MQTT")
	_, _ = fmt.Fprintln(out, "Use --http to serve points and previews over HTTP")
	_, _ = fmt.Fprintln(out, "\nConfiguration:")
	_, _ = fmt.Fprintln(out, "  config.yaml - MQTT, sources and reduction settings")
	_, _ = fmt.Fprintln(out, "  .reduced-cache.json - Last reduced point set (cached)")
	return nil
}
