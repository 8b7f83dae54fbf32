// Package compose renders survey cutouts into the thumbnail attached to each
// notification.
//
// Panels are stretched to grayscale, resampled to a common square size,
// annotated with a centre marker, a scale bar and the survey name, and tiled
// left to right under a title strip. An optional significance map is drawn as
// contours over the first panel.
package compose

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"transientbot/internal/config"
	"transientbot/internal/imagery"
	"transientbot/internal/textutil"
	"transientbot/internal/transients"
)

// ErrNothingToCompose is returned when no panel is available.
var ErrNothingToCompose = errors.New("no panels to compose")

const (
	scaleBarArcsec = 30
	gap            = 4
	titleHeight    = 22
)

var (
	background  = color.RGBA{R: 16, G: 16, B: 16, A: 255}
	markerColor = color.RGBA{G: 255, B: 255, A: 255}
	textColor   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	// Innermost (highest) level first.
	contourColors = []color.RGBA{
		{R: 255, G: 40, B: 40, A: 255},
		{R: 255, G: 150, B: 0, A: 255},
		{R: 255, G: 230, B: 0, A: 255},
		{R: 80, G: 255, B: 80, A: 255},
	}
)

// Options controls rendering.
type Options struct {
	PanelSize      int
	PMin           float64
	PMax           float64
	Levels         []float64
	RelativeLevels bool
}

// Composer renders thumbnails into a directory.
type Composer struct {
	dir  string
	opts Options
}

// New returns a Composer writing into dir.
func New(dir string, opts Options) *Composer {
	if opts.PanelSize <= 0 {
		opts.PanelSize = 400
	}
	if opts.PMax <= opts.PMin {
		opts.PMin, opts.PMax = 70, 99.9
	}
	return &Composer{dir: dir, opts: opts}
}

// FromConfig builds a Composer from the compose and ts_map sections.
func FromConfig(cfg *config.Config) *Composer {
	return New(cfg.Paths.ImagesDir, Options{
		PanelSize:      cfg.Compose.PanelSize,
		PMin:           cfg.Compose.PMin,
		PMax:           cfg.Compose.PMax,
		Levels:         cfg.TSMap.Levels,
		RelativeLevels: cfg.TSMap.Relative,
	})
}

// Path returns the thumbnail location for id.
func (c *Composer) Path(id string) string {
	return filepath.Join(c.dir, textutil.FileToken(id)+"_thumb.png")
}

// Compose renders and writes the thumbnail for t, returning its path.
func (c *Composer) Compose(t transients.Transient, panels []*imagery.Cutout, contours *imagery.Cutout) (string, error) {
	img, err := c.Render(t, panels, contours)
	if err != nil {
		return "", err
	}
	path := c.Path(t.ID)
	if err := writePNG(path, img); err != nil {
		return "", err
	}
	return path, nil
}

// Render draws the thumbnail in memory.
func (c *Composer) Render(t transients.Transient, panels []*imagery.Cutout, contours *imagery.Cutout) (*image.RGBA, error) {
	usable := make([]*imagery.Cutout, 0, len(panels))
	for _, p := range panels {
		if p != nil && p.Width > 0 && p.Height > 0 {
			usable = append(usable, p)
		}
	}
	if len(usable) == 0 {
		return nil, ErrNothingToCompose
	}

	size := c.opts.PanelSize
	width := len(usable)*size + (len(usable)+1)*gap
	height := titleHeight + size + gap
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	drawText(canvas, gap, titleHeight-7, title(t))

	for i, cutout := range usable {
		origin := image.Pt(gap+i*(size+gap), titleHeight)
		panel := c.renderPanel(cutout)
		if i == 0 && contours != nil {
			c.drawContours(panel, contours)
		}
		drawMarker(panel)
		drawScaleBar(panel, cutout)
		drawText(panel, 4, 14, cutout.Survey)
		draw.Draw(canvas, panel.Bounds().Add(origin), panel, image.Point{}, draw.Src)
	}
	return canvas, nil
}

func title(t transients.Transient) string {
	if !t.HasCoordinates || !t.Coordinates.Valid() {
		return t.ID
	}
	ra, dec := t.Coordinates.Sexagesimal()
	return fmt.Sprintf("%s  %s %s", t.ID, ra, dec)
}

func (c *Composer) renderPanel(cutout *imagery.Cutout) *image.RGBA {
	gray := Stretch(cutout, c.opts.PMin, c.opts.PMax)
	size := c.opts.PanelSize
	panel := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(panel, panel.Bounds(), gray, gray.Bounds(), draw.Src, nil)
	return panel
}

func (c *Composer) drawContours(panel *image.RGBA, tsMap *imagery.Cutout) {
	levels := ContourLevels(tsMap, c.opts.Levels, c.opts.RelativeLevels)
	if len(levels) == 0 {
		return
	}
	sort.Float64s(levels)
	size := panel.Bounds().Dx()
	grid := resampleNearest(tsMap, size)
	// Ascending so inner contours are drawn last.
	for i, level := range levels {
		col := contourColors[(len(levels)-1-i)%len(contourColors)]
		for idx, on := range ContourMask(grid, size, size, level) {
			if on {
				panel.SetRGBA(idx%size, idx/size, col)
			}
		}
	}
}

func drawMarker(panel *image.RGBA) {
	size := panel.Bounds().Dx()
	cx, cy := size/2, size/2
	arm := size / 20
	if arm < 3 {
		arm = 3
	}
	for d := -arm; d <= arm; d++ {
		for w := -1; w <= 0; w++ {
			panel.SetRGBA(cx+d, cy+w, markerColor)
			panel.SetRGBA(cx+w, cy+d, markerColor)
		}
	}
}

func drawScaleBar(panel *image.RGBA, cutout *imagery.Cutout) {
	if cutout.PixelScaleArcsec <= 0 || cutout.Width == 0 {
		return
	}
	size := panel.Bounds().Dx()
	arcsecPerPanelPixel := cutout.PixelScaleArcsec * float64(cutout.Width) / float64(size)
	length := int(scaleBarArcsec / arcsecPerPanelPixel)
	if length < 4 || length > size*4/5 {
		return
	}
	x0, y := 8, size-10
	for x := x0; x < x0+length; x++ {
		panel.SetRGBA(x, y, textColor)
		panel.SetRGBA(x, y+1, textColor)
	}
	drawText(panel, x0, y-4, fmt.Sprintf("%d\"", scaleBarArcsec))
}

func drawText(dst draw.Image, x, y int, text string) {
	if text == "" {
		return
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(textColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func writePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create images directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".thumb-*.png")
	if err != nil {
		return fmt.Errorf("create thumbnail: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if err := png.Encode(tmp, img); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("encode thumbnail: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync thumbnail: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close thumbnail: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("rename thumbnail: %w", err)
	}
	return nil
}
