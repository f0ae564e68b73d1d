package pdf

import (
	"bytes"
	"fmt"
	"image"
	"strconv"

	// Decoders for signature image dimension probing.
	_ "image/jpeg"
	_ "image/png"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Engine implements GeometryReader and Stamper on pdfcpu.
type Engine struct {
	conf *model.Configuration
}

func NewEngine() *Engine {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Engine{conf: conf}
}

// Geometry reads per-page dimensions. Callers fall back to LetterSize when
// this fails, so errors carry context but are survivable.
func (e *Engine) Geometry(data []byte) (Geometry, error) {
	dims, err := api.PageDims(bytes.NewReader(data), e.conf)
	if err != nil {
		return Geometry{}, fmt.Errorf("read page dimensions: %w", err)
	}
	geom := Geometry{Pages: make([]Size, len(dims))}
	for i, d := range dims {
		geom.Pages[i] = Size{Width: d.Width, Height: d.Height}
	}
	return geom, nil
}

// Apply burns overlays into the base PDF one page at a time and returns the
// composited bytes. Image stamps are scaled from their native pixel size to
// the requested box width.
func (e *Engine) Apply(base []byte, overlays []Overlay) ([]byte, error) {
	current := base
	for _, overlay := range overlays {
		pages := []string{strconv.Itoa(overlay.PageIndex + 1)}

		if len(overlay.Image.Data) > 0 {
			wm, err := e.imageWatermark(overlay.Image)
			if err != nil {
				return nil, err
			}
			stamped, err := e.addWatermark(current, pages, wm)
			if err != nil {
				return nil, fmt.Errorf("stamp signature image on page %d: %w", overlay.PageIndex+1, err)
			}
			current = stamped
		}

		for _, text := range overlay.Texts {
			if text.Text == "" {
				continue
			}
			wm, err := e.textWatermark(text)
			if err != nil {
				return nil, err
			}
			stamped, err := e.addWatermark(current, pages, wm)
			if err != nil {
				return nil, fmt.Errorf("stamp text on page %d: %w", overlay.PageIndex+1, err)
			}
			current = stamped
		}
	}
	return current, nil
}

func (e *Engine) addWatermark(data []byte, pages []string, wm *model.Watermark) ([]byte, error) {
	var out bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(data), &out, pages, wm, e.conf); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func (e *Engine) imageWatermark(stamp ImageStamp) (*model.Watermark, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(stamp.Data))
	if err != nil {
		return nil, fmt.Errorf("decode signature image: %w", err)
	}
	scale := 1.0
	if cfg.Width > 0 {
		scale = stamp.Width / float64(cfg.Width)
	}
	desc := fmt.Sprintf("pos:bl, off:%.2f %.2f, scale:%.4f abs, rot:0, op:1",
		stamp.X, stamp.Y, scale)
	wm, err := api.ImageWatermarkForReader(bytes.NewReader(stamp.Data), desc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("build image watermark: %w", err)
	}
	return wm, nil
}

func (e *Engine) textWatermark(stamp TextStamp) (*model.Watermark, error) {
	desc := fmt.Sprintf("font:Helvetica, points:%d, pos:bl, off:%.2f %.2f, fillc:#000000, rot:0, op:1",
		int(stamp.FontSize), stamp.X, stamp.Y)
	wm, err := api.TextWatermark(stamp.Text, desc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("build text watermark: %w", err)
	}
	return wm, nil
}
