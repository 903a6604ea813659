package heat

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	// maxPreviewDim caps either side of a raster preview; larger extents
	// are drawn at a reduced scale.
	maxPreviewDim = 4096

	legendLineHeight = 15
	legendMinWidth   = 220
)

// Layer is one colored group of points in a preview
type Layer struct {
	Name   string
	Points []WeightedPoint
	Color  string // hex, e.g. "#FF0000"
}

// PreviewRenderer draws weighted points as discs on the ground plane. A
// point's disc area grows linearly with its weight.
type PreviewRenderer struct {
	Layers      []Layer
	Plane       Plane
	Scale       float64 // Pixels per world unit
	Padding     int     // Padding around the image in pixels
	PointRadius float64 // Radius in pixels of a weight-1 point
	Alpha       uint8   // Disc opacity
}

// NewPreviewRenderer creates a raster renderer using cfg, falling back to
// the render defaults for unset fields.
func NewPreviewRenderer(layers []Layer, plane Plane, cfg RenderConfig) *PreviewRenderer {
	c := Config{Render: cfg}
	c.ApplyRenderDefaults()
	return &PreviewRenderer{
		Layers:      layers,
		Plane:       plane,
		Scale:       c.Render.Scale,
		Padding:     c.Render.Padding,
		PointRadius: c.Render.PointRadius,
		Alpha:       180,
	}
}

// discRadius returns the radius for a point of weight w at pointRadius,
// capped at maxPreviewDim since no preview is larger than that.
func discRadius(pointRadius, w float64) float64 {
	return math.Min(pointRadius*math.Sqrt(w), maxPreviewDim)
}

// groundBound returns the ground extent of all layers and false when there
// are no points.
func groundBound(layers []Layer, plane Plane) (minA, minB, maxA, maxB float64, ok bool) {
	var all []WeightedPoint
	for _, l := range layers {
		all = append(all, l.Points...)
	}
	if len(all) == 0 {
		return 0, 0, 0, 0, false
	}
	b := Bounds(all).Ground(plane)
	return b.Min[0], b.Min[1], b.Max[0], b.Max[1], true
}

// fitScale shrinks scale so that span*scale stays within maxPreviewDim
func fitScale(scale, spanA, spanB float64, padding int) float64 {
	limit := float64(maxPreviewDim - 2*padding)
	if limit <= 0 {
		return scale
	}
	if spanA*scale > limit {
		scale = limit / spanA
	}
	if spanB*scale > limit {
		scale = limit / spanB
	}
	return scale
}

// Render creates the preview image
func (r *PreviewRenderer) Render() *image.RGBA {
	minA, minB, maxA, maxB, ok := groundBound(r.Layers, r.Plane)
	scale := r.Scale
	if ok {
		scale = fitScale(scale, maxA-minA, maxB-minB, r.Padding)
	}

	legendHeight := legendLineHeight * (len(r.Layers) + 1)
	width := int((maxA-minA)*scale) + 2*r.Padding
	height := int((maxB-minB)*scale) + 2*r.Padding + legendHeight
	if width < legendMinWidth {
		width = legendMinWidth
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{255, 255, 255, 255})
		}
	}

	// Image Y grows downward, so the ground B axis is flipped.
	toPixel := func(p WeightedPoint) (int, int) {
		a, b := r.Plane.Axes(p.Vec())
		px := int(math.Round((a-minA)*scale)) + r.Padding
		py := int(math.Round((maxB-b)*scale)) + r.Padding
		return px, py
	}

	for _, l := range r.Layers {
		c := parseHexColor(l.Color)
		fill := color.NRGBA{c.R, c.G, c.B, r.Alpha}
		for _, p := range l.Points {
			px, py := toPixel(p)
			radius := int(math.Round(discRadius(r.PointRadius, p.Weight)))
			if radius < 1 {
				radius = 1
			}
			fillDisc(img, px, py, radius, fill)
		}
	}

	r.drawLegend(img, height-legendHeight)
	return img
}

func (r *PreviewRenderer) drawLegend(img *image.RGBA, top int) {
	black := color.RGBA{0, 0, 0, 255}
	total, weight := 0, 0.0
	y := top + legendLineHeight - 3
	for _, l := range r.Layers {
		total += len(l.Points)
		weight += TotalWeight(l.Points)

		drawDisc(img, 10, y-4, 4, parseHexColor(l.Color))
		drawText(img, 20, y, fmt.Sprintf("%s: %d points", l.Name, len(l.Points)), black)
		y += legendLineHeight
	}
	drawText(img, 10, y, fmt.Sprintf("total %d points, weight %.4g", total, weight), black)
}

// WritePNG encodes the preview as PNG
func (r *PreviewRenderer) WritePNG(w io.Writer) error {
	return png.Encode(w, r.Render())
}

// SavePNG writes the preview to a PNG file
func (r *PreviewRenderer) SavePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return r.WritePNG(f)
}

// blendColors performs alpha blending of fg over an opaque background
func blendColors(bg color.RGBA, fg color.NRGBA) color.NRGBA {
	alpha := float64(fg.A) / 255.0
	invAlpha := 1.0 - alpha

	return color.NRGBA{
		R: uint8(float64(fg.R)*alpha + float64(bg.R)*invAlpha),
		G: uint8(float64(fg.G)*alpha + float64(bg.G)*invAlpha),
		B: uint8(float64(fg.B)*alpha + float64(bg.B)*invAlpha),
		A: 255,
	}
}

// fillDisc blends a translucent disc onto img so overlapping points darken.
// Only the part of the disc inside img is visited.
func fillDisc(img *image.RGBA, cx, cy, radius int, c color.NRGBA) {
	clip := image.Rect(cx-radius, cy-radius, cx+radius+1, cy+radius+1).Intersect(img.Bounds())
	r2 := radius * radius
	for y := clip.Min.Y; y < clip.Max.Y; y++ {
		dy := y - cy
		for x := clip.Min.X; x < clip.Max.X; x++ {
			dx := x - cx
			if dx*dx+dy*dy > r2 {
				continue
			}
			img.Set(x, y, blendColors(img.RGBAAt(x, y), c))
		}
	}
}

func drawDisc(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	fillDisc(img, cx, cy, radius, color.NRGBA{c.R, c.G, c.B, 255})
}

func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// parseHexColor parses "#RRGGBB", defaulting to red
func parseHexColor(hex string) color.RGBA {
	defaultColor := color.RGBA{255, 0, 0, 255}

	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	if len(hex) != 6 {
		return defaultColor
	}

	var r, g, b uint8
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		return defaultColor
	}
	return color.RGBA{r, g, b, 255}
}
