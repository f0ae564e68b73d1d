// Package signature computes where a signature mark lands on a document.
// Placement is a pure function of the page geometry, the authored position,
// and the date/label layout flags; it has no state and touches no storage.
package signature

import (
	"fmt"
	"math"
	"time"

	dErrors "vellum/pkg/domain-errors"

	"vellum/internal/pdf"
)

// DatePosition controls where the signing date is drawn relative to the
// signature image, and how much of the box the image may occupy.
type DatePosition string

const (
	DateRight DatePosition = "right"
	DateBelow DatePosition = "below"
	DateAbove DatePosition = "above"
	DateNone  DatePosition = "none"
)

func (d DatePosition) Valid() bool {
	switch d {
	case DateRight, DateBelow, DateAbove, DateNone:
		return true
	}
	return false
}

// Position is an authored placement box. Coordinates are PDF points with the
// origin at the top-left.
//
// Two authoring models exist:
//   - page-relative: Y is measured from the top of the page named by
//     PageNumber (1-based; 0 means page 1).
//   - absolute: Y is measured from the top of page 1 as if all pages were
//     stacked vertically with no gaps (the drag-and-drop canvas model). The
//     page is computed from Y, except that an explicit PageNumber wins when Y
//     is still within the first page's bounds.
type Position struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	PageNumber int     `json:"page_number,omitempty"`
	Absolute   bool    `json:"absolute,omitempty"`
}

// Layout carries the per-signatory rendering flags.
type Layout struct {
	DatePosition   DatePosition
	ShowLabel      bool
	ShowSignerName bool
	Label          string
	SignerName     string
}

// Constants of the text layout. One text line consumes LineHeight points of
// the box before the image sizing split is applied.
const (
	LineHeight = 14.0
	FontSize   = 10.0
	DateGap    = 6.0

	imageWidthPctRight = 0.75
	imageHeightPctDate = 0.80
)

// Placement is the resolved landing spot: zero-based page index plus the
// page-relative vertical offset from the top of that page.
type Placement struct {
	PageIndex int
	RelativeY float64
}

// ResolvePage computes which page an authored position lands on.
//
// Absolute positions divide Y by the page height: a Y sitting exactly on a
// page boundary belongs to the page starting there (floor semantics). An
// explicit PageNumber overrides the computed page only while Y is within the
// bounds of page 1; beyond that the computed page wins.
func ResolvePage(geom pdf.Geometry, pos Position) Placement {
	if !pos.Absolute {
		page := pos.PageNumber - 1
		if page < 0 {
			page = 0
		}
		return Placement{PageIndex: clampPage(geom, page), RelativeY: pos.Y}
	}

	firstHeight := geom.Page(0).Height
	if firstHeight <= 0 {
		firstHeight = pdf.LetterSize.Height
	}

	if pos.Y < firstHeight && pos.PageNumber > 0 {
		// Author intent wins for placements still within page 1's bounds.
		return Placement{PageIndex: clampPage(geom, pos.PageNumber-1), RelativeY: pos.Y}
	}

	pageIndex := int(math.Floor(pos.Y / firstHeight))
	relativeY := math.Mod(pos.Y, firstHeight)

	// Honor non-uniform page heights when the geometry declares them.
	if !uniformHeights(geom) {
		pageIndex, relativeY = walkPages(geom, pos.Y)
	}

	return Placement{PageIndex: clampPage(geom, pageIndex), RelativeY: relativeY}
}

func uniformHeights(geom pdf.Geometry) bool {
	if geom.PageCount() <= 1 {
		return true
	}
	first := geom.Pages[0].Height
	for _, p := range geom.Pages[1:] {
		if p.Height != first {
			return false
		}
	}
	return true
}

func walkPages(geom pdf.Geometry, absY float64) (int, float64) {
	remaining := absY
	for i, page := range geom.Pages {
		if remaining < page.Height {
			return i, remaining
		}
		remaining -= page.Height
	}
	last := geom.PageCount() - 1
	return last, geom.Page(last).Height - 1
}

func clampPage(geom pdf.Geometry, page int) int {
	if page < 0 {
		return 0
	}
	if count := geom.PageCount(); count > 0 && page > count-1 {
		return count - 1
	}
	return page
}

// BuildOverlay lays out the signature image, date, label, and signer-name
// lines inside the authored box and converts everything to the bottom-left
// coordinate system the stamper expects.
func BuildOverlay(geom pdf.Geometry, pos Position, layout Layout, imageData []byte, signedAt time.Time) (pdf.Overlay, error) {
	if !layout.DatePosition.Valid() {
		return pdf.Overlay{}, dErrors.Newf(dErrors.CodeValidation, "unknown date position %q", layout.DatePosition)
	}
	if pos.Width <= 0 || pos.Height <= 0 {
		return pdf.Overlay{}, dErrors.New(dErrors.CodeValidation, "placement box must have positive width and height")
	}

	placed := ResolvePage(geom, pos)
	pageHeight := geom.Page(placed.PageIndex).Height

	// Text lines below the image consume box height before the image split.
	textLines := 0
	if layout.ShowLabel {
		textLines++
	}
	if layout.ShowSignerName {
		textLines++
	}
	available := pos.Height - float64(textLines)*LineHeight
	if available <= 0 {
		return pdf.Overlay{}, dErrors.New(dErrors.CodeValidation, "placement box too short for enabled text lines")
	}

	var (
		imgW, imgH float64
		imgTopY    = placed.RelativeY
		texts      []pdf.TextStamp
	)

	dateLine := signedAt.Format("2006-01-02")
	timeLine := signedAt.Format("15:04")

	switch layout.DatePosition {
	case DateRight:
		imgW = pos.Width * imageWidthPctRight
		imgH = available
		// Date and time stacked to the right, centered on the image midpoint.
		dateX := pos.X + imgW + DateGap
		midY := imgTopY + imgH/2
		texts = append(texts,
			textAt(dateLine, dateX, midY-LineHeight/2, pageHeight),
			textAt(timeLine, dateX, midY+LineHeight/2, pageHeight),
		)
	case DateBelow:
		imgW = pos.Width
		imgH = available * imageHeightPctDate
		stamp := dateLine + " " + timeLine
		dateY := imgTopY + imgH + LineHeight
		texts = append(texts,
			textAt(stamp, centerX(pos.X, imgW, stamp), dateY, pageHeight))
	case DateAbove:
		imgW = pos.Width
		imgH = available * imageHeightPctDate
		// Image shifts down to leave the date line above the block.
		imgTopY += available - imgH
		stamp := dateLine + " " + timeLine
		texts = append(texts,
			textAt(stamp, centerX(pos.X, imgW, stamp), placed.RelativeY+LineHeight, pageHeight))
	case DateNone:
		imgW = pos.Width
		imgH = available
	}

	// Label and signer name sit directly below the image, in that order.
	lineY := imgTopY + imgH + LineHeight
	if layout.DatePosition == DateBelow {
		lineY += LineHeight
	}
	if layout.ShowLabel && layout.Label != "" {
		texts = append(texts, textAt(layout.Label, pos.X, lineY, pageHeight))
		lineY += LineHeight
	}
	if layout.ShowSignerName && layout.SignerName != "" {
		texts = append(texts, textAt(fmt.Sprintf("signed by %s", layout.SignerName), pos.X, lineY, pageHeight))
	}

	return pdf.Overlay{
		PageIndex: placed.PageIndex,
		Image: pdf.ImageStamp{
			Data: imageData,
			X:    pos.X,
			// Convert top-origin to the renderer's bottom-left origin.
			Y:      pageHeight - imgTopY - imgH,
			Width:  imgW,
			Height: imgH,
		},
		Texts: texts,
	}, nil
}

// centerX centers a text line horizontally under a block of the given width,
// estimating glyph advance at half the font size.
func centerX(blockX, blockWidth float64, text string) float64 {
	textWidth := float64(len(text)) * FontSize * 0.5
	x := blockX + (blockWidth-textWidth)/2
	if x < blockX {
		return blockX
	}
	return x
}

// textAt converts a top-origin baseline position into a bottom-left stamp.
func textAt(text string, x, topY, pageHeight float64) pdf.TextStamp {
	return pdf.TextStamp{
		Text:     text,
		X:        x,
		Y:        pageHeight - topY,
		FontSize: FontSize,
	}
}
