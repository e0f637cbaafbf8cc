package documents

import (
	"errors"
	"math"
	"strings"
	"testing"

	apperrors "github.com/ironsheep/textdet/internal/errors"
)

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestParseWords(t *testing.T) {
	markup := `<div id="page0" style="width:200.0pt;height:100.0pt">
<p style="top:30.4pt;left:20.0pt;line-height:12.0pt"><span style="font-family:Helvetica,serif;font-size:12.0pt">Hello  world</span></p>
<p style="top:50.0pt;left:10.0pt;line-height:10.0pt"><span style="font-size:10.0pt">a&amp;b</span><span style="font-size:20.0pt">c</span></p>
</div>`

	words, err := parseWords(markup)
	if err != nil {
		t.Fatalf("parseWords failed: %v", err)
	}

	want := []Word{
		{"Hello", Region{20, 30.4, 50, 42.4}},
		{"world", Region{62, 30.4, 92, 42.4}},
		{"a&bc", Region{10, 50, 45, 60}},
	}
	if len(words) != len(want) {
		t.Fatalf("got %d words %+v, want %d", len(words), words, len(want))
	}
	for i, w := range want {
		got := words[i]
		if got.Text != w.Text {
			t.Errorf("word %d = %q, want %q", i, got.Text, w.Text)
		}
		b, wb := got.Bounds, w.Bounds
		if !near(b.X0, wb.X0, 1e-9) || !near(b.Y0, wb.Y0, 1e-9) || !near(b.X1, wb.X1, 1e-9) || !near(b.Y1, wb.Y1, 1e-9) {
			t.Errorf("word %q bounds = %+v, want %+v", got.Text, b, wb)
		}
	}
}

func TestParseWords_Empty(t *testing.T) {
	words, err := parseWords(`<div id="page0" style="width:10pt;height:10pt"></div>`)
	if err != nil {
		t.Fatalf("parseWords failed: %v", err)
	}
	if words == nil || len(words) != 0 {
		t.Errorf("words = %#v, want empty", words)
	}
}

func TestParseArtefacts(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		want   []Region
	}{
		{
			"direct image",
			`<image x="1" y="2" width="10" height="5" transform="translate(100,50)" xlink:href="data:,"/>`,
			[]Region{{101, 52, 111, 57}},
		},
		{
			"nested groups",
			`<g transform="scale(2)"><g transform="translate(5 5)"><image width="4" height="3"/></g></g>`,
			[]Region{{10, 10, 18, 16}},
		},
		{
			"symbol reused twice",
			`<defs><symbol id="image_1" viewBox="0 0 2 2"><image width="2" height="2" xlink:href="data:,"/></symbol></defs>
<use xlink:href="#image_1" x="0" y="0" width="2" height="2" transform="matrix(25,0,0,15,120,50)"/>
<use xlink:href="#image_1" width="2" height="2" transform="matrix(-5,0,0,5,30,0)"/>`,
			[]Region{{120, 50, 170, 80}, {20, 0, 30, 10}},
		},
		{
			"use of a path",
			`<defs><path id="glyph_1" d="M0 0L1 1"/></defs><use xlink:href="#glyph_1" x="3" y="4"/>`,
			[]Region{},
		},
		{
			"image inside a mask",
			`<mask id="m"><image width="9" height="9"/></mask><rect width="9" height="9"/>`,
			[]Region{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			markup := `<?xml version="1.0" encoding="UTF-8" standalone="no"?>` +
				`<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="200pt" height="100pt" viewBox="0 0 200 100">` +
				tt.markup + `</svg>`
			got, err := parseArtefacts(markup)
			if err != nil {
				t.Fatalf("parseArtefacts failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d regions %+v, want %d", len(got), got, len(tt.want))
			}
			for i, w := range tt.want {
				g := got[i]
				if !near(g.X0, w.X0, 1e-9) || !near(g.Y0, w.Y0, 1e-9) || !near(g.X1, w.X1, 1e-9) || !near(g.Y1, w.Y1, 1e-9) {
					t.Errorf("region %d = %+v, want %+v", i, g, w)
				}
			}
		})
	}
}

func TestParseTransform(t *testing.T) {
	tests := []struct {
		in   string
		want matrix
	}{
		{"", identity},
		{"translate(3)", matrix{1, 0, 0, 1, 3, 0}},
		{"translate(3, 4) scale(2)", matrix{2, 0, 0, 2, 3, 4}},
		{"scale(2 3),translate(1,1)", matrix{2, 0, 0, 3, 2, 3}},
		{"matrix(1 2 3 4 5 6)", matrix{1, 2, 3, 4, 5, 6}},
		{"rotate(45) translate(1,2)", matrix{1, 0, 0, 1, 1, 2}},
	}
	for _, tt := range tests {
		if got := parseTransform(tt.in); got != tt.want {
			t.Errorf("parseTransform(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDocument_Layout(t *testing.T) {
	doc := openTestPDF(t, FromBytes(layoutPDF()))

	pages, err := doc.Layout()
	if err != nil {
		t.Fatalf("Layout failed: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("got %d pages, want 1", len(pages))
	}
	page := pages[0]
	if page.Width != 200 || page.Height != 100 {
		t.Errorf("page size = %vx%v, want 200x100", page.Width, page.Height)
	}
	if !strings.Contains(page.Text, "Hello world") {
		t.Errorf("text = %q", page.Text)
	}

	if len(page.Words) != 2 || page.Words[0].Text != "Hello" || page.Words[1].Text != "world" {
		t.Fatalf("words = %+v, want Hello, world", page.Words)
	}
	hello, world := page.Words[0].Bounds, page.Words[1].Bounds
	// The baseline sits 40 points below the top of the page.
	if !near(hello.X0, 20, 1) || hello.Y0 < 25 || hello.Y0 > 40 || hello.Y1 <= 40 || hello.Y1 > 50 {
		t.Errorf("Hello bounds = %+v", hello)
	}
	if world.X0 <= hello.X1 || world.X1 > 200 || world.Y0 != hello.Y0 {
		t.Errorf("world bounds = %+v after Hello %+v", world, hello)
	}

	if len(page.Artefacts) != 1 {
		t.Fatalf("artefacts = %+v, want one image", page.Artefacts)
	}
	a := page.Artefacts[0]
	if !near(a.X0, 120, 1) || !near(a.Y0, 50, 1) || !near(a.X1, 170, 1) || !near(a.Y1, 80, 1) {
		t.Errorf("image region = %+v, want 120,50 - 170,80", a)
	}
}

func TestDocument_LayoutBlankPage(t *testing.T) {
	doc := openTestPDF(t, FromBytes(minimalPDF()))

	words, err := doc.Words(0)
	if err != nil {
		t.Fatalf("Words failed: %v", err)
	}
	if len(words) != 0 {
		t.Errorf("words = %+v, want none", words)
	}
	artefacts, err := doc.Artefacts(0)
	if err != nil {
		t.Fatalf("Artefacts failed: %v", err)
	}
	if len(artefacts) != 0 {
		t.Errorf("artefacts = %+v, want none", artefacts)
	}

	if _, err := doc.Words(1); err == nil {
		t.Error("Words(1) on a one-page document succeeded")
	}
	if _, err := doc.Artefacts(-1); err == nil {
		t.Error("Artefacts(-1) succeeded")
	}
	if _, err := doc.Layout(0, 3); err == nil {
		t.Error("Layout with a missing page succeeded")
	}
}

func TestReadLayout_Errors(t *testing.T) {
	if _, err := ReadLayout(FromBytes(encodePNG(t, 4, 4))); !errors.Is(err, apperrors.ErrUnsupportedType) {
		t.Errorf("PNG: expected UnsupportedType, got %v", err)
	}
	if _, err := ReadLayout(FromPath("/nonexistent/doc.pdf")); !errors.Is(err, apperrors.ErrFileNotFound) {
		t.Errorf("missing: expected FileNotFound, got %v", err)
	}
}
