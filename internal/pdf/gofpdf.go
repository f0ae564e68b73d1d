package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/phpdave11/gofpdf"
)

// TextRenderer renders draft documents from plain-text templates with
// {{placeholder}} markers. It is the default Renderer; template-format
// specific engines can replace it behind the port.
type TextRenderer struct {
	FontSize   float64
	LineHeight float64
	Margin     float64
}

func NewTextRenderer() *TextRenderer {
	return &TextRenderer{FontSize: 11, LineHeight: 16, Margin: 56}
}

// Render substitutes values into the template text and lays it out on US
// Letter pages. Unsubstituted markers are left verbatim; the generator
// validates required variables before calling Render.
func (r *TextRenderer) Render(templateText string, values map[string]string) ([]byte, error) {
	text := Substitute(templateText, values)

	doc := gofpdf.New("P", "pt", "Letter", "")
	doc.SetMargins(r.Margin, r.Margin, r.Margin)
	doc.SetAutoPageBreak(true, r.Margin)
	doc.AddPage()
	doc.SetFont("Helvetica", "", r.FontSize)

	width, _ := doc.GetPageSize()
	usable := width - 2*r.Margin
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			doc.Ln(r.LineHeight)
			continue
		}
		doc.MultiCell(usable, r.LineHeight, line, "", "L", false)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// Substitute replaces {{name}} markers with their values. Markers without a
// value stay in place.
func Substitute(templateText string, values map[string]string) string {
	replacements := make([]string, 0, len(values)*2)
	for name, value := range values {
		replacements = append(replacements, "{{"+name+"}}", value)
	}
	return strings.NewReplacer(replacements...).Replace(templateText)
}

// ExtractPlaceholders discovers {{name}} markers in template text, in order of
// first appearance. This is the default variable extractor for text templates.
func ExtractPlaceholders(templateText string) []string {
	var (
		out  []string
		seen = map[string]bool{}
	)
	rest := templateText
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			break
		}
		name := strings.TrimSpace(rest[start+2 : start+end])
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
		rest = rest[start+end+2:]
	}
	return out
}
