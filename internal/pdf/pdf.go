// Package pdf isolates the binary PDF machinery behind small ports. The
// signing core computes placements in points; this package reads page
// geometry, renders draft documents, and burns overlays into pages. Exact byte
// layout of the output is not a contract, page geometry and overlay placement
// are.
package pdf

// Size is one page's dimensions in PDF points.
type Size struct {
	Width  float64
	Height float64
}

// Geometry is the per-page size table of a document. Pages may differ in
// height; the common case is uniform.
type Geometry struct {
	Pages []Size
}

// PageCount returns the number of pages.
func (g Geometry) PageCount() int { return len(g.Pages) }

// Page returns the size of the zero-based page index, defaulting to US Letter
// when the index is out of range.
func (g Geometry) Page(index int) Size {
	if index < 0 || index >= len(g.Pages) {
		return LetterSize
	}
	return g.Pages[index]
}

// LetterSize is the fallback page size when geometry extraction fails:
// US Letter, 612x792 points.
var LetterSize = Size{Width: 612, Height: 792}

// GeometryReader extracts page geometry from PDF bytes.
type GeometryReader interface {
	Geometry(data []byte) (Geometry, error)
}

// ImageStamp places an image on a page. Coordinates are bottom-left origin in
// points, as the rendering system expects.
type ImageStamp struct {
	Data   []byte
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// TextStamp places one text line on a page, bottom-left origin.
type TextStamp struct {
	Text     string
	X        float64
	Y        float64
	FontSize float64
}

// Overlay is everything to burn onto one page for one signature: the signature
// image plus its date/label/name text lines.
type Overlay struct {
	PageIndex int
	Image     ImageStamp
	Texts     []TextStamp
}

// Stamper composites overlays onto a base PDF and returns the new bytes. The
// base is never modified.
type Stamper interface {
	Apply(base []byte, overlays []Overlay) ([]byte, error)
}

// Renderer synthesizes a draft PDF from template text with placeholder values
// substituted. The substitution format is a black box behind this port.
type Renderer interface {
	Render(templateText string, values map[string]string) ([]byte, error)
}
