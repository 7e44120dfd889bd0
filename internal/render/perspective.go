package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sort"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/woozymasta/lidardsm/internal/colormap"
	"github.com/woozymasta/lidardsm/internal/grid"
)

// Nominal base map width in plot centimetres that ZScale is measured against.
const baseWidthCM = 15.0

const (
	defaultMaxFacets   = 400
	defaultSupersample = 2
	frameMargin        = 40
	titleMargin        = 36
	lightAzimuth       = 315.0
	lightAltitude      = 45.0
)

// PerspectiveOptions controls the 3D surface view.
type PerspectiveOptions struct {
	Title string

	// Azimuth is the direction the viewer looks from, degrees clockwise from north.
	Azimuth float64
	// Elevation is the view angle above the horizon in degrees.
	Elevation float64
	// ZScale is plot centimetres per elevation unit on a 15 cm wide base map.
	ZScale float64

	Shading bool
	Labels  bool
	Color   ColorRange
	Width   int

	// MaxFacets caps the number of quads along either grid axis.
	MaxFacets   int
	Supersample int
}

// Validate checks the view angles and vertical scale.
func (o PerspectiveOptions) Validate() error {
	if math.IsNaN(o.Azimuth) || o.Azimuth < 0 || o.Azimuth > 360 {
		return fmt.Errorf("%w: azimuth %g outside [0, 360]", ErrRender, o.Azimuth)
	}
	if math.IsNaN(o.Elevation) || o.Elevation <= 0 || o.Elevation > 90 {
		return fmt.Errorf("%w: elevation %g outside (0, 90]", ErrRender, o.Elevation)
	}
	if math.IsNaN(o.ZScale) || math.IsInf(o.ZScale, 0) || o.ZScale <= 0 {
		return fmt.Errorf("%w: vertical scale %g must be positive", ErrRender, o.ZScale)
	}
	return nil
}

type vec2 struct{ x, y float64 }

// view is an orthographic camera over a grid.
type view struct {
	g              *grid.Grid
	cx, cy, base   float64
	vert           float64
	dx, dy, rx, ry float64
	sinE, cosE     float64
}

func newView(g *grid.Grid, o PerspectiveOptions, base float64) view {
	az := o.Azimuth * math.Pi / 180
	el := o.Elevation * math.Pi / 180
	span := math.Max(g.Region.Width(), g.Region.Height())
	return view{
		g:    g,
		cx:   (g.Region.West + g.Region.East) / 2,
		cy:   (g.Region.South + g.Region.North) / 2,
		base: base,
		vert: o.ZScale * span / baseWidthCM,
		dx:   math.Sin(az),
		dy:   math.Cos(az),
		rx:   -math.Cos(az),
		ry:   math.Sin(az),
		sinE: math.Sin(el),
		cosE: math.Cos(el),
	}
}

// depth grows toward the viewer.
func (v view) depth(x, y float64) float64 {
	return (x-v.cx)*v.dx + (y-v.cy)*v.dy
}

// project returns screen coordinates with y pointing up.
func (v view) project(x, y, z float64) vec2 {
	u, w := x-v.cx, y-v.cy
	h := (z - v.base) * v.vert
	return vec2{
		x: u*v.rx + w*v.ry,
		y: -(u*v.dx+w*v.dy)*v.sinE + h*v.cosE,
	}
}

type quad struct {
	c, r  int
	depth float64
}

// Perspective renders the grid as a shaded 3D surface seen from
// (Azimuth, Elevation). NaN nodes leave holes.
func Perspective(g *grid.Grid, opts PerspectiveOptions) (image.Image, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	if g.NX < 2 || g.NY < 2 {
		return nil, fmt.Errorf("%w: grid %dx%d too small for a surface", ErrRender, g.NX, g.NY)
	}

	lo, hi, ok := g.Range()
	if !ok {
		return nil, fmt.Errorf("%w: grid holds no values", ErrRender)
	}
	clo, chi := lo, hi
	if clo == chi {
		clo, chi = clo-0.5, chi+0.5
	}
	cm, err := opts.Color.resolve(clo, chi)
	if err != nil {
		return nil, err
	}

	maxFacets := opts.MaxFacets
	if maxFacets <= 0 {
		maxFacets = defaultMaxFacets
	}
	ss := opts.Supersample
	if ss <= 0 {
		ss = defaultSupersample
	}
	width := opts.Width
	if width <= 0 {
		width = defaultWidth
	}

	m := decimate(g, maxFacets)
	v := newView(g, opts, lo)

	// Screen bounds over every node plus the base frame.
	proj := make([]vec2, m.nx()*m.ny())
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	extend := func(p vec2) {
		minX, maxX = math.Min(minX, p.x), math.Max(maxX, p.x)
		minY, maxY = math.Min(minY, p.y), math.Max(maxY, p.y)
	}
	for r := 0; r < m.ny(); r++ {
		for c := 0; c < m.nx(); c++ {
			z := m.at(c, r)
			if math.IsNaN(z) {
				continue
			}
			p := v.project(m.x(c), m.y(r), z)
			proj[m.index(c, r)] = p
			extend(p)
		}
	}
	corners := baseCorners(g, v)
	for _, p := range corners {
		extend(p)
	}

	top := titleMargin
	if opts.Title == "" {
		top = frameMargin
	}
	scale := float64((width-2*frameMargin)*ss) / math.Max(maxX-minX, 1e-9)
	height := int(math.Ceil((maxY-minY)*scale/float64(ss))) + top + frameMargin
	toPx := func(p vec2) vec2 {
		return vec2{
			x: float64(frameMargin*ss) + (p.x-minX)*scale,
			y: float64(top*ss) + (maxY-p.y)*scale,
		}
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width*ss, height*ss))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	frame := color.NRGBA{60, 60, 60, 255}
	for i := range corners {
		strokeLine(canvas, toPx(corners[i]), toPx(corners[(i+1)%4]), float64(ss), frame)
	}

	quads := make([]quad, 0, (m.nx()-1)*(m.ny()-1))
	for r := 0; r < m.ny()-1; r++ {
		for c := 0; c < m.nx()-1; c++ {
			x := (m.x(c) + m.x(c+1)) / 2
			y := (m.y(r) + m.y(r+1)) / 2
			quads = append(quads, quad{c: c, r: r, depth: v.depth(x, y)})
		}
	}
	sort.Slice(quads, func(i, j int) bool { return quads[i].depth < quads[j].depth })

	ras := vector.NewRasterizer(1, 1)
	for _, q := range quads {
		idx := [4]int{
			m.index(q.c, q.r),
			m.index(q.c+1, q.r),
			m.index(q.c+1, q.r+1),
			m.index(q.c, q.r+1),
		}
		nodes := [4][2]int{{q.c, q.r}, {q.c + 1, q.r}, {q.c + 1, q.r + 1}, {q.c, q.r + 1}}
		var zs [4]float64
		hole := false
		for i, n := range nodes {
			zs[i] = m.at(n[0], n[1])
			if math.IsNaN(zs[i]) {
				hole = true
			}
		}
		if hole {
			continue
		}

		mean := (zs[0] + zs[1] + zs[2] + zs[3]) / 4
		col := color.NRGBAModel.Convert(colormap.Clamped(cm, mean)).(color.NRGBA)
		if opts.Shading {
			col = shade(col, hillshade(zs, m.x(q.c+1)-m.x(q.c), m.y(q.r+1)-m.y(q.r)))
		}

		var poly [4]vec2
		for i, k := range idx {
			poly[i] = toPx(proj[k])
		}
		fillQuad(ras, canvas, poly, col)
	}

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(out, out.Bounds(), canvas, canvas.Bounds(), draw.Over, nil)

	final := func(p vec2) (int, int) {
		q := toPx(p)
		return int(q.x) / ss, int(q.y) / ss
	}
	if opts.Title != "" {
		drawText(out, opts.Title, width/2, titleMargin-12, color.Black)
	}
	if opts.Labels {
		drawAxisLabels(out, g, v, corners, hi, final)
	}
	return out, nil
}

// mesh is the subset of grid nodes drawn as facets. The last column and row
// are always kept, so the final interval may be shorter than the others.
type mesh struct {
	g          *grid.Grid
	cols, rows []int
}

func (m mesh) nx() int { return len(m.cols) }
func (m mesh) ny() int { return len(m.rows) }
func (m mesh) index(c, r int) int { return r*len(m.cols) + c }
func (m mesh) x(c int) float64 { return m.g.X(m.cols[c]) }
func (m mesh) y(r int) float64 { return m.g.Y(m.rows[r]) }
func (m mesh) at(c, r int) float64 { return m.g.At(m.cols[c], m.rows[r]) }

// decimate keeps every step-th node, plus the last one on each axis, so
// neither axis exceeds maxFacets quads.
func decimate(g *grid.Grid, maxFacets int) mesh {
	step := max(1, int(math.Ceil(float64(max(g.NX, g.NY)-1)/float64(maxFacets))))
	return mesh{g: g, cols: sampleNodes(g.NX, step), rows: sampleNodes(g.NY, step)}
}

func sampleNodes(n, step int) []int {
	out := make([]int, 0, (n-1)/step+2)
	for i := 0; i < n; i += step {
		out = append(out, i)
	}
	if out[len(out)-1] != n-1 {
		out = append(out, n-1)
	}
	return out
}

// baseCorners projects the region outline at the base elevation: SW, SE, NE, NW.
func baseCorners(g *grid.Grid, v view) [4]vec2 {
	r := g.Region
	return [4]vec2{
		v.project(r.West, r.South, v.base),
		v.project(r.East, r.South, v.base),
		v.project(r.East, r.North, v.base),
		v.project(r.West, r.North, v.base),
	}
}

// hillshade returns Lambertian intensity for a quad with corner heights
// (SW, SE, NE, NW) and sides dx by dy, normalised so flat ground gives 1.
func hillshade(zs [4]float64, dx, dy float64) float64 {
	dzdx := ((zs[1] + zs[2]) - (zs[0] + zs[3])) / (2 * dx)
	dzdy := ((zs[2] + zs[3]) - (zs[0] + zs[1])) / (2 * dy)

	az := lightAzimuth * math.Pi / 180
	alt := lightAltitude * math.Pi / 180
	lx, ly, lz := math.Sin(az)*math.Cos(alt), math.Cos(az)*math.Cos(alt), math.Sin(alt)

	n := math.Sqrt(dzdx*dzdx + dzdy*dzdy + 1)
	i := (-dzdx*lx - dzdy*ly + lz) / n
	return math.Max(0, i) / lz
}

func shade(c color.NRGBA, intensity float64) color.NRGBA {
	f := clamp(0.6+0.4*intensity, 0.25, 1.35)
	return color.NRGBA{
		R: uint8(clamp(float64(c.R)*f, 0, 255)),
		G: uint8(clamp(float64(c.G)*f, 0, 255)),
		B: uint8(clamp(float64(c.B)*f, 0, 255)),
		A: 255,
	}
}

func clamp(v, lo, hi float64) float64 { return math.Max(lo, math.Min(hi, v)) }

// fillQuad draws poly with each corner pushed half a pixel away from the
// centre so neighbouring facets overlap instead of leaving seams.
func fillQuad(ras *vector.Rasterizer, dst draw.Image, poly [4]vec2, col color.NRGBA) {
	var cx, cy float64
	for _, p := range poly {
		cx += p.x / 4
		cy += p.y / 4
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i, p := range poly {
		dx, dy := p.x-cx, p.y-cy
		if l := math.Hypot(dx, dy); l > 0 {
			p.x += 0.5 * dx / l
			p.y += 0.5 * dy / l
		}
		poly[i] = p
		minX, maxX = math.Min(minX, p.x), math.Max(maxX, p.x)
		minY, maxY = math.Min(minY, p.y), math.Max(maxY, p.y)
	}

	rect := image.Rect(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX)), int(math.Ceil(maxY)))
	rect = rect.Intersect(dst.Bounds())
	if rect.Empty() {
		return
	}
	ox, oy := float64(rect.Min.X), float64(rect.Min.Y)

	ras.Reset(rect.Dx(), rect.Dy())
	ras.MoveTo(float32(poly[0].x-ox), float32(poly[0].y-oy))
	for _, p := range poly[1:] {
		ras.LineTo(float32(p.x-ox), float32(p.y-oy))
	}
	ras.ClosePath()
	ras.Draw(dst, rect, image.NewUniform(col), image.Point{})
}

// strokeLine draws a segment of the given width.
func strokeLine(dst draw.Image, a, b vec2, width float64, col color.Color) {
	dx, dy := b.x-a.x, b.y-a.y
	l := math.Hypot(dx, dy)
	if l == 0 {
		return
	}
	nx, ny := -dy/l*width/2, dx/l*width/2
	poly := [4]vec2{
		{a.x + nx, a.y + ny},
		{b.x + nx, b.y + ny},
		{b.x - nx, b.y - ny},
		{a.x - nx, a.y - ny},
	}
	c := color.NRGBAModel.Convert(col).(color.NRGBA)
	fillQuad(vector.NewRasterizer(1, 1), dst, poly, c)
}

// drawText centres s horizontally on x with its baseline at y.
func drawText(dst draw.Image, s string, x, y int, col color.Color) {
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(col), Face: basicfont.Face7x13}
	w := d.MeasureString(s).Ceil()
	d.Dot = fixed.P(x-w/2, y)
	d.DrawString(s)
}

// drawAxisLabels names the front base edges and the vertical axis.
func drawAxisLabels(dst draw.Image, g *grid.Grid, v view, corners [4]vec2, hi float64, toPx func(vec2) (int, int)) {
	r := g.Region
	midX := (r.West + r.East) / 2
	midY := (r.South + r.North) / 2

	// Easting along whichever of the south/north edges faces the viewer.
	ex, ey := v.project(midX, r.South, v.base), v.depth(midX, r.South)
	if v.depth(midX, r.North) > ey {
		ex = v.project(midX, r.North, v.base)
	}
	x, y := toPx(ex)
	drawText(dst, "Easting", x, y+18, color.Black)

	nx, ny := v.project(r.West, midY, v.base), v.depth(r.West, midY)
	if v.depth(r.East, midY) > ny {
		nx = v.project(r.East, midY, v.base)
	}
	x, y = toPx(nx)
	drawText(dst, "Northing", x, y+18, color.Black)

	// Vertical axis at the leftmost base corner.
	left := 0
	for i := range corners {
		if corners[i].x < corners[left].x {
			left = i
		}
	}
	xs := [4]float64{r.West, r.East, r.East, r.West}
	ys := [4]float64{r.South, r.South, r.North, r.North}
	bx, by := toPx(corners[left])
	tx, ty := toPx(v.project(xs[left], ys[left], hi))
	axis := color.NRGBA{60, 60, 60, 255}
	strokeLine(dst, vec2{float64(bx), float64(by)}, vec2{float64(tx), float64(ty)}, 1, axis)
	drawText(dst, ElevationLabel, tx, ty-6, color.Black)
}

