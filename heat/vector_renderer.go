package heat

import (
	"image/color"
	"image/png"
	"io"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// nrgbaToRGBA converts color.NRGBA to premultiplied color.RGBA for canvas
func nrgbaToRGBA(c color.NRGBA) color.RGBA {
	if c.A == 0 {
		return color.RGBA{0, 0, 0, 0}
	}
	if c.A == 255 {
		return color.RGBA{c.R, c.G, c.B, 255}
	}
	alpha32 := uint32(c.A)
	return color.RGBA{
		R: uint8((uint32(c.R) * alpha32) / 255),
		G: uint8((uint32(c.G) * alpha32) / 255),
		B: uint8((uint32(c.B) * alpha32) / 255),
		A: c.A,
	}
}

// VectorRenderer draws weighted points as circles in vector form. Canvas
// units are millimetres.
type VectorRenderer struct {
	Layers      []Layer
	Plane       Plane
	Scale       float64           // Canvas units per world unit
	Padding     float64           // Padding in canvas units
	PointRadius float64           // Radius of a weight-1 point in canvas units
	Resolution  canvas.Resolution // Resolution for PNG output
	Alpha       uint8
}

// NewVectorRenderer creates a vector renderer using cfg, falling back to
// the render defaults for unset fields.
func NewVectorRenderer(layers []Layer, plane Plane, cfg RenderConfig) *VectorRenderer {
	c := Config{Render: cfg}
	c.ApplyRenderDefaults()
	return &VectorRenderer{
		Layers:      layers,
		Plane:       plane,
		Scale:       c.Render.Scale,
		Padding:     float64(c.Render.Padding),
		PointRadius: c.Render.PointRadius,
		Resolution:  canvas.DPI(c.Render.Resolution),
		Alpha:       180,
	}
}

// canvasRenderer is implemented by both the svg and rasterizer renderers
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// size returns the canvas size and the ground origin
func (r *VectorRenderer) size() (width, height, minA, minB float64) {
	minA, minB, maxA, maxB, _ := groundBound(r.Layers, r.Plane)
	width = (maxA-minA)*r.Scale + 2*r.Padding
	height = (maxB-minB)*r.Scale + 2*r.Padding
	return width, height, minA, minB
}

// RenderToSVG writes the points as an SVG
func (r *VectorRenderer) RenderToSVG(w io.Writer) error {
	width, height, minA, minB := r.size()

	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, width, height, minA, minB)
	return svgRenderer.Close()
}

// RenderToPNG rasterizes the points and writes a PNG
func (r *VectorRenderer) RenderToPNG(w io.Writer) error {
	width, height, minA, minB := r.size()

	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, width, height, minA, minB)
	return png.Encode(w, rast)
}

func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, width, height, minA, minB float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	// Canvas Y grows upward, matching the ground B axis.
	toCanvas := func(p WeightedPoint) (float64, float64) {
		a, b := r.Plane.Axes(p.Vec())
		return (a-minA)*r.Scale + r.Padding, (b-minB)*r.Scale + r.Padding
	}

	for _, l := range r.Layers {
		c := parseHexColor(l.Color)

		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: nrgbaToRGBA(color.NRGBA{c.R, c.G, c.B, r.Alpha})}
		style.Stroke = canvas.Paint{Color: canvas.Transparent}

		for _, p := range l.Points {
			cx, cy := toCanvas(p)
			circle := canvas.Circle(discRadius(r.PointRadius, p.Weight)).Translate(cx, cy)
			renderer.RenderPath(circle, style, canvas.Identity)
		}
	}
}
