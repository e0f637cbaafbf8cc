package documents

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/net/html"

	apperrors "github.com/ironsheep/textdet/internal/errors"
)

// glyphAdvance is the assumed width of one character, as a fraction of the
// font size. MuPDF's HTML output positions lines, not glyphs, so word
// extents along a line are estimated from their character count.
const glyphAdvance = 0.5

// Region is an axis-aligned box in points, with the origin at the top-left
// corner of the page.
type Region struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Word is a word of the text layer and its position on the page.
type Word struct {
	Text   string `json:"text"`
	Bounds Region `json:"bounds"`
}

// PageLayout is the embedded content of one page: its text layer, its words
// and the regions covered by raster images.
type PageLayout struct {
	Page      int      `json:"page"`
	Width     float64  `json:"width"`
	Height    float64  `json:"height"`
	Text      string   `json:"text"`
	Words     []Word   `json:"words"`
	Artefacts []Region `json:"artefacts"`
}

// checkPage reports an error when i is not a page index. The caller holds
// d.mu.
func (d *Document) checkPage(i int) error {
	if n := d.doc.NumPage(); i < 0 || i >= n {
		return fmt.Errorf("page %d out of range: %s has %d pages", i, d.name(), n)
	}
	return nil
}

// Words returns the words of the text layer of page i, in reading order.
// Vertical extents are the line box; horizontal extents are estimated.
func (d *Document) Words(i int) ([]Word, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkPage(i); err != nil {
		return nil, err
	}

	markup, err := d.doc.HTML(i, false)
	if err != nil {
		return nil, apperrors.NewUndecodableError(d.name(), fmt.Errorf("text layer of page %d: %w", i, err))
	}
	return parseWords(markup)
}

// Artefacts returns the regions covered by raster images on page i.
func (d *Document) Artefacts(i int) ([]Region, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkPage(i); err != nil {
		return nil, err
	}

	markup, err := d.doc.SVG(i)
	if err != nil {
		return nil, apperrors.NewUndecodableError(d.name(), fmt.Errorf("drawing of page %d: %w", i, err))
	}
	return parseArtefacts(markup)
}

// Layout returns the layout of the given pages, or of every page when none
// are given.
func (d *Document) Layout(pages ...int) ([]PageLayout, error) {
	if len(pages) == 0 {
		n := d.NumPages()
		pages = make([]int, n)
		for i := range pages {
			pages[i] = i
		}
	}

	out := make([]PageLayout, 0, len(pages))
	for _, i := range pages {
		words, err := d.Words(i)
		if err != nil {
			return nil, err
		}
		artefacts, err := d.Artefacts(i)
		if err != nil {
			return nil, err
		}
		text, err := d.Text(i)
		if err != nil {
			return nil, apperrors.NewUndecodableError(d.name(), fmt.Errorf("text of page %d: %w", i, err))
		}
		w, h, err := d.PageSize(i)
		if err != nil {
			return nil, apperrors.NewUndecodableError(d.name(), err)
		}
		out = append(out, PageLayout{
			Page:      i,
			Width:     w,
			Height:    h,
			Text:      text,
			Words:     words,
			Artefacts: artefacts,
		})
	}
	return out, nil
}

// ReadLayout opens a PDF and returns the layout of the given pages, or of
// every page when none are given.
func ReadLayout(f File, pages ...int) ([]PageLayout, error) {
	data, err := f.bytes()
	if err != nil {
		return nil, err
	}
	if !isPDF(data) {
		return nil, apperrors.NewUnsupportedTypeError(fmt.Sprintf("%s is not a PDF; only PDFs carry a text layer", f))
	}

	doc, err := ReadPDF(f)
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	return doc.Layout(pages...)
}

// parseWords splits the lines of MuPDF structured-text HTML into words.
// Each line is a <p> carrying its top, left and line-height in points;
// its <span> children carry the font size.
func parseWords(markup string) ([]Word, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, apperrors.NewUndecodableError("text layer", err)
	}

	words := []Word{}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "p" {
			words = append(words, lineWords(n)...)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return words, nil
}

func lineWords(p *html.Node) []Word {
	style := parseStyle(attr(p, "style"))
	top := style["top"]
	left := style["left"]
	height := style["line-height"]

	var words []Word
	var cur strings.Builder
	x := left
	start := left
	bottom := top + height

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		words = append(words, Word{
			Text:   cur.String(),
			Bounds: Region{X0: start, Y0: top, X1: x, Y1: bottom},
		})
		cur.Reset()
	}

	var walk func(n *html.Node, size float64)
	walk = func(n *html.Node, size float64) {
		if n.Type == html.ElementNode {
			if fs, ok := parseStyle(attr(n, "style"))["font-size"]; ok && fs > 0 {
				size = fs
			}
		}
		if n.Type == html.TextNode {
			if height <= 0 && size > 0 {
				bottom = top + size
			}
			for _, r := range n.Data {
				if unicode.IsSpace(r) {
					flush()
					x += size * glyphAdvance
					continue
				}
				if cur.Len() == 0 {
					start = x
				}
				cur.WriteRune(r)
				x += size * glyphAdvance
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, size)
		}
	}
	walk(p, height)
	flush()
	return words
}

// parseStyle reads the numeric properties of an inline CSS declaration
// list, dropping a "pt" unit. Other properties are skipped.
func parseStyle(style string) map[string]float64 {
	props := make(map[string]float64)
	for _, decl := range strings.Split(style, ";") {
		name, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		value = strings.TrimSuffix(strings.TrimSpace(value), "pt")
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			props[strings.TrimSpace(name)] = v
		}
	}
	return props
}

// attr returns the value of the attribute key of n, ignoring namespaces.
func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// definitions holds SVG elements that are only drawn when referenced.
var definitions = map[string]bool{
	"defs":           true,
	"symbol":         true,
	"clipPath":       true,
	"mask":           true,
	"pattern":        true,
	"linearGradient": true,
	"radialGradient": true,
}

// parseArtefacts finds every image drawn by an SVG document, directly or
// through <use>, and returns its bounding box in the document's user space.
func parseArtefacts(markup string) ([]Region, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, apperrors.NewUndecodableError("page drawing", err)
	}

	ids := make(map[string]*html.Node)
	var index func(n *html.Node)
	index = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if id := attr(n, "id"); id != "" {
				ids[id] = n
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			index(c)
		}
	}
	index(root)

	regions := []Region{}
	var walk func(n *html.Node, m matrix)
	walk = func(n *html.Node, m matrix) {
		if n.Type == html.ElementNode {
			if definitions[n.Data] {
				return
			}
			m = m.mul(parseTransform(attr(n, "transform")))

			switch n.Data {
			case "image":
				regions = append(regions, imageRegion(n, m))
				return
			case "use":
				if r, ok := useRegion(n, m, ids); ok {
					regions = append(regions, r)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, m)
		}
	}
	walk(root, identity)
	return regions, nil
}

// imageRegion maps the rectangle of an <image> through m. m already
// includes the element's own transform.
func imageRegion(n *html.Node, m matrix) Region {
	x, y := number(n, "x"), number(n, "y")
	return m.bounds(x, y, x+number(n, "width"), y+number(n, "height"))
}

// useRegion resolves a <use> that draws an image, either directly or
// through a <symbol> wrapping one.
func useRegion(n *html.Node, m matrix, ids map[string]*html.Node) (Region, bool) {
	target := ids[strings.TrimPrefix(attr(n, "href"), "#")]
	if target == nil {
		return Region{}, false
	}
	img := findImage(target)
	if img == nil {
		return Region{}, false
	}

	m = m.mul(translate(number(n, "x"), number(n, "y")))
	if target.Data == "symbol" {
		w, h := number(n, "width"), number(n, "height")
		if vb := strings.FieldsFunc(attr(target, "viewBox"), isSeparator); len(vb) == 4 {
			vx, _ := strconv.ParseFloat(vb[0], 64)
			vy, _ := strconv.ParseFloat(vb[1], 64)
			vw, _ := strconv.ParseFloat(vb[2], 64)
			vh, _ := strconv.ParseFloat(vb[3], 64)
			if w == 0 {
				w = vw
			}
			if h == 0 {
				h = vh
			}
			if vw > 0 && vh > 0 {
				m = m.mul(scale(w/vw, h/vh)).mul(translate(-vx, -vy))
			}
		}
	}
	return imageRegion(img, m.mul(parseTransform(attr(img, "transform")))), true
}

func findImage(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "image" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if img := findImage(c); img != nil {
			return img
		}
	}
	return nil
}

func number(n *html.Node, key string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSuffix(attr(n, key), "pt"), 64)
	return v
}

// matrix is an SVG affine transform [a b c d e f], mapping (x, y) to
// (a*x + c*y + e, b*x + d*y + f).
type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

func translate(x, y float64) matrix { return matrix{1, 0, 0, 1, x, y} }

func scale(x, y float64) matrix { return matrix{x, 0, 0, y, 0, 0} }

// mul returns m applied after n.
func (m matrix) mul(n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[2]*n[1],
		m[1]*n[0] + m[3]*n[1],
		m[0]*n[2] + m[2]*n[3],
		m[1]*n[2] + m[3]*n[3],
		m[0]*n[4] + m[2]*n[5] + m[4],
		m[1]*n[4] + m[3]*n[5] + m[5],
	}
}

func (m matrix) apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// bounds maps the rectangle (x0, y0)-(x1, y1) and returns the box around
// its corners.
func (m matrix) bounds(x0, y0, x1, y1 float64) Region {
	var r Region
	for k, c := range [4][2]float64{{x0, y0}, {x1, y0}, {x0, y1}, {x1, y1}} {
		x, y := m.apply(c[0], c[1])
		if k == 0 {
			r = Region{X0: x, Y0: y, X1: x, Y1: y}
			continue
		}
		r.X0, r.X1 = min(r.X0, x), max(r.X1, x)
		r.Y0, r.Y1 = min(r.Y0, y), max(r.Y1, y)
	}
	return r
}

// parseTransform reads an SVG transform list. Unknown functions are
// ignored.
func parseTransform(s string) matrix {
	m := identity
	for {
		open := strings.IndexByte(s, '(')
		end := strings.IndexByte(s, ')')
		if open < 0 || end < open {
			return m
		}
		name := strings.TrimSpace(strings.Trim(s[:open], ", "))
		var args []float64
		for _, f := range strings.FieldsFunc(s[open+1:end], isSeparator) {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return m
			}
			args = append(args, v)
		}
		s = s[end+1:]

		switch {
		case name == "matrix" && len(args) == 6:
			m = m.mul(matrix{args[0], args[1], args[2], args[3], args[4], args[5]})
		case name == "translate" && len(args) == 1:
			m = m.mul(translate(args[0], 0))
		case name == "translate" && len(args) == 2:
			m = m.mul(translate(args[0], args[1]))
		case name == "scale" && len(args) == 1:
			m = m.mul(scale(args[0], args[0]))
		case name == "scale" && len(args) == 2:
			m = m.mul(scale(args[0], args[1]))
		}
	}
}

func isSeparator(r rune) bool {
	return r == ',' || unicode.IsSpace(r)
}
