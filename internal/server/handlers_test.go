package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/ironsheep/textdet/internal/config"
	"github.com/ironsheep/textdet/internal/detection"
	"github.com/ironsheep/textdet/internal/documents"
	"github.com/ironsheep/textdet/internal/model"
	"github.com/ironsheep/textdet/internal/ocr"
	"github.com/ironsheep/textdet/internal/predictor"
	"github.com/ironsheep/textdet/internal/tensor"
)

// testInputSize matches the test pages so boxes map 1:1 onto them.
const testInputSize = 64

// darkModel marks every pixel darker than mid-grey as text with
// probability 0.9. With mean 0.5 and std 1, dark pixels are negative.
var darkModel = model.Func(func(ctx context.Context, batch *tensor.Tensor, opts ...model.Option) (model.Output, error) {
	n, h, w := batch.Dim(0), batch.Dim(1), batch.Dim(2)
	out := tensor.New(n, h, w, 1)
	for i := 0; i < n; i++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if batch.At(i, y, x, 0) < 0 {
					out.Set(0.9, i, y, x, 0)
				}
			}
		}
	}
	return model.Output{model.ProbaMapKey: out}, nil
})

// newTestServer builds a server with a 64x64 input size. A non-nil m
// replaces the configured model in the shared predictor.
func newTestServer(t *testing.T, m model.Model) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Preprocess.OutputSize = [2]int{testInputSize, testInputSize}

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if m != nil {
		pre, err := cfg.Preprocessor()
		if err != nil {
			t.Fatal(err)
		}
		post, err := cfg.PostProcessor()
		if err != nil {
			t.Fatal(err)
		}
		s.predictor = predictor.New(pre, m, post)
	}
	return s
}

// createTestImageFile writes a white PNG with black rectangles and returns
// its path.
func createTestImageFile(t *testing.T, width, height int, blocks ...image.Rectangle) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	for _, b := range blocks {
		draw.Draw(img, b, image.NewUniform(color.Black), image.Point{}, draw.Src)
	}

	path := filepath.Join(t.TempDir(), "page.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create image file: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

func callTool(t *testing.T, s *Server, name string, args map[string]interface{}) *MCPResponse {
	t.Helper()
	params, err := json.Marshal(map[string]interface{}{"name": name, "arguments": args})
	if err != nil {
		t.Fatal(err)
	}
	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  params,
	})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	return resp
}

// decodeResult unmarshals the text content of a successful tool call into v
// and returns the request id.
func decodeResult(t *testing.T, resp *MCPResponse, v interface{}) string {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	result := resp.Result.(map[string]interface{})
	content := result["content"].([]map[string]interface{})
	if len(content) != 1 || content[0]["type"] != "text" {
		t.Fatalf("unexpected content: %v", content)
	}
	if err := json.Unmarshal([]byte(content[0]["text"].(string)), v); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	meta := result["_meta"].(map[string]interface{})
	return meta["request_id"].(string)
}

// errorCode returns the error_code of a failed tool call.
func errorCode(t *testing.T, resp *MCPResponse) string {
	t.Helper()
	if resp.Error == nil {
		t.Fatalf("expected an error, got result %v", resp.Result)
	}
	if resp.Error.Code != -32000 {
		t.Fatalf("error code = %d, want -32000", resp.Error.Code)
	}
	data := resp.Error.Data.(map[string]interface{})
	if id, _ := data["request_id"].(string); id == "" {
		t.Error("error data has no request_id")
	}
	code, _ := data["error_code"].(string)
	return code
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := newTestServer(t, nil)
	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  json.RawMessage(`[1, 2]`),
	})
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("error = %+v, want -32602", resp.Error)
	}
}

func TestHandleToolsCall_UnknownTool(t *testing.T) {
	s := newTestServer(t, nil)
	resp := callTool(t, s, "image_load", map[string]interface{}{})
	if code := errorCode(t, resp); code != "" {
		t.Errorf("error_code = %q, want none", code)
	}
}

func TestDocumentInfo(t *testing.T) {
	s := newTestServer(t, nil)
	path := createTestImageFile(t, 100, 80)

	var info documents.Info
	id := decodeResult(t, callTool(t, s, "document_info", map[string]interface{}{"path": path}), &info)

	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("request_id %q is not a UUID: %v", id, err)
	}
	if info.Kind != documents.KindImage || info.Format != "png" || info.Width != 100 || info.Height != 80 || info.Pages != 1 {
		t.Errorf("info = %+v", info)
	}
}

func TestDocumentInfo_Errors(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing file", map[string]interface{}{"path": "/nonexistent/image.png"}, "FILE_NOT_FOUND"},
		{"no path", map[string]interface{}{}, "UNSUPPORTED_TYPE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := errorCode(t, callTool(t, s, "document_info", tt.args)); code != tt.want {
				t.Errorf("error_code = %q, want %q", code, tt.want)
			}
		})
	}
}

// writeTextPDF writes a one-page 200x100 point PDF showing text in 12
// point Helvetica.
func writeTextPDF(t *testing.T, text string) string {
	t.Helper()
	content := fmt.Sprintf("BT /F1 12 Tf 20 60 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 100] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	path := filepath.Join(t.TempDir(), "text.pdf")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("failed to write PDF: %v", err)
	}
	doc, err := documents.ReadPDF(documents.FromPath(path))
	if err != nil {
		t.Skipf("MuPDF unavailable: %v", err)
	}
	doc.Close()
	return path
}

func TestDocumentLayout(t *testing.T) {
	s := newTestServer(t, nil)
	path := writeTextPDF(t, "Invoice total")

	var result documentLayoutResult
	decodeResult(t, callTool(t, s, "document_layout", map[string]interface{}{"path": path, "pages": []int{0}}), &result)

	if result.Source != path || len(result.Pages) != 1 {
		t.Fatalf("result = %+v", result)
	}
	page := result.Pages[0]
	if page.Page != 0 || page.Width != 200 || page.Height != 100 {
		t.Errorf("page = %d, %vx%v", page.Page, page.Width, page.Height)
	}
	if len(page.Words) != 2 || page.Words[0].Text != "Invoice" || page.Words[1].Text != "total" {
		t.Errorf("words = %+v", page.Words)
	}
	if page.Artefacts == nil || len(page.Artefacts) != 0 {
		t.Errorf("artefacts = %#v, want empty", page.Artefacts)
	}
}

func TestDocumentLayout_Errors(t *testing.T) {
	s := newTestServer(t, nil)
	imgPath := createTestImageFile(t, 16, 16)

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"image", map[string]interface{}{"path": imgPath}, "UNSUPPORTED_TYPE"},
		{"missing file", map[string]interface{}{"path": "/nonexistent/doc.pdf"}, "FILE_NOT_FOUND"},
		{"no path", map[string]interface{}{}, "UNSUPPORTED_TYPE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := errorCode(t, callTool(t, s, "document_layout", tt.args)); code != tt.want {
				t.Errorf("error_code = %q, want %q", code, tt.want)
			}
		})
	}

	path := writeTextPDF(t, "x")
	if resp := callTool(t, s, "document_layout", map[string]interface{}{"path": path, "pages": []int{1}}); resp.Error == nil {
		t.Error("expected an error for a missing page")
	}
}

func TestTextDetect(t *testing.T) {
	s := newTestServer(t, darkModel)
	path := createTestImageFile(t, testInputSize, testInputSize, image.Rect(20, 20, 40, 40))

	var result textDetectResult
	decodeResult(t, callTool(t, s, "text_detect", map[string]interface{}{"path": path}), &result)

	if result.Source != path || result.Geometry != detection.GeometryStraight || result.Model != config.ModelContrast {
		t.Errorf("result header = %q %q %q", result.Source, result.Geometry, result.Model)
	}
	if len(result.Pages) != 1 || result.TotalBoxes != 1 {
		t.Fatalf("pages = %d, total boxes = %d, want 1 and 1", len(result.Pages), result.TotalBoxes)
	}

	page := result.Pages[0]
	if page.Page != 0 || page.Width != testInputSize || page.Height != testInputSize || page.Count != 1 {
		t.Errorf("page = %+v", page)
	}
	box := page.Boxes[0]
	if box.Bounds != (detection.Bounds{X1: 20, Y1: 20, X2: 39, Y2: 39}) {
		t.Errorf("bounds = %+v", box.Bounds)
	}
	want := []float64{20, 20, 40, 40}
	for i := range want {
		if box.Coords[i] != want[i] {
			t.Fatalf("coords = %v, want %v", box.Coords, want)
		}
	}
	if box.Score < 0.89 || box.Score > 0.91 {
		t.Errorf("score = %v, want 0.9", box.Score)
	}
}

func TestTextDetect_ScalesToPage(t *testing.T) {
	s := newTestServer(t, darkModel)
	// A 128x128 page is shrunk to the 64x64 input; boxes come back in page
	// pixels.
	path := createTestImageFile(t, 128, 128, image.Rect(40, 40, 80, 80))

	var result textDetectResult
	decodeResult(t, callTool(t, s, "text_detect", map[string]interface{}{"path": path}), &result)

	if result.TotalBoxes != 1 {
		t.Fatalf("total boxes = %d, want 1", result.TotalBoxes)
	}
	b := result.Pages[0].Boxes[0].Bounds
	if b.X1 < 38 || b.X1 > 42 || b.X2 < 77 || b.X2 > 81 || b.Y1 < 38 || b.Y2 > 81 {
		t.Errorf("bounds = %+v, want about (40,40)-(79,79)", b)
	}
}

func TestTextDetect_Overrides(t *testing.T) {
	s := newTestServer(t, nil)
	path := createTestImageFile(t, testInputSize, testInputSize, image.Rect(10, 10, 50, 30))

	var result textDetectResult
	decodeResult(t, callTool(t, s, "text_detect", map[string]interface{}{
		"path":       path,
		"geometry":   "Polygon",
		"box_thresh": 0.3,
	}), &result)

	if result.Geometry != detection.GeometryPolygon {
		t.Errorf("geometry = %q, want polygon", result.Geometry)
	}
	for _, b := range result.Pages[0].Boxes {
		if len(b.Polygon) < 4 {
			t.Errorf("polygon with %d points", len(b.Polygon))
		}
	}
}

func TestTextDetect_Errors(t *testing.T) {
	s := newTestServer(t, darkModel)
	path := createTestImageFile(t, 32, 32)

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"no source", map[string]interface{}{}, "UNSUPPORTED_TYPE"},
		{"path and url", map[string]interface{}{"path": path, "url": "http://example.com"}, "UNSUPPORTED_TYPE"},
		{"missing file", map[string]interface{}{"path": "/nonexistent/page.png"}, "FILE_NOT_FOUND"},
		{"bad geometry", map[string]interface{}{"path": path, "geometry": "ellipse"}, "INVALID_CONFIG"},
		{"bad threshold", map[string]interface{}{"path": path, "bin_thresh": 1.5}, "INVALID_CONFIG"},
		{"page out of range", map[string]interface{}{"path": path, "pages": []int{3}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := errorCode(t, callTool(t, s, "text_detect", tt.args)); code != tt.want {
				t.Errorf("error_code = %q, want %q", code, tt.want)
			}
		})
	}
}

func TestTextDetect_URL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><h1>Heading</h1><p>Some text on a web page.</p></body></html>")
	}))
	defer srv.Close()

	doc, err := documents.FromURL(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Skipf("MuPDF HTML engine unavailable: %v", err)
	}
	doc.Close()

	s := newTestServer(t, darkModel)
	s.client = srv.Client()

	var result textDetectResult
	decodeResult(t, callTool(t, s, "text_detect", map[string]interface{}{"url": srv.URL, "dpi": 72}), &result)

	if len(result.Pages) < 1 {
		t.Fatal("no pages rendered")
	}
	if result.Source != srv.URL || result.Pages[0].Width == 0 || result.Pages[0].Height == 0 {
		t.Errorf("result = %+v", result)
	}
}

func TestDetectionOverlay(t *testing.T) {
	s := newTestServer(t, darkModel)
	path := createTestImageFile(t, testInputSize, testInputSize, image.Rect(20, 20, 40, 40))
	out := filepath.Join(t.TempDir(), "overlay.png")

	var result struct {
		Width       int             `json:"width"`
		Height      int             `json:"height"`
		ImageBase64 string          `json:"image_base64"`
		MimeType    string          `json:"mime_type"`
		Count       int             `json:"count"`
		Page        int             `json:"page"`
		Boxes       []detection.Box `json:"boxes"`
		SavedTo     string          `json:"saved_to"`
	}
	decodeResult(t, callTool(t, s, "detection_overlay", map[string]interface{}{
		"path":        path,
		"color":       "#ff0000",
		"output_path": out,
	}), &result)

	if result.Count != 1 || len(result.Boxes) != 1 || result.MimeType != "image/png" {
		t.Errorf("result = count %d, boxes %d, mime %q", result.Count, len(result.Boxes), result.MimeType)
	}
	if result.SavedTo != out {
		t.Errorf("saved_to = %q, want %q", result.SavedTo, out)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("overlay not saved: %v", err)
	}

	data, err := base64.StdEncoding.DecodeString(result.ImageBase64)
	if err != nil {
		t.Fatalf("invalid base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("invalid PNG: %v", err)
	}
	if img.Bounds().Dx() != testInputSize || img.Bounds().Dy() != testInputSize {
		t.Errorf("overlay size = %v", img.Bounds())
	}

	// The outline runs along the box's top edge.
	r, g, b, _ := img.At(30, 20).RGBA()
	if r>>8 < 200 || g>>8 > 60 || b>>8 > 60 {
		t.Errorf("pixel on outline = (%d, %d, %d), want red", r>>8, g>>8, b>>8)
	}
}

func TestDetectionOverlay_PageOutOfRange(t *testing.T) {
	s := newTestServer(t, darkModel)
	path := createTestImageFile(t, 32, 32)

	resp := callTool(t, s, "detection_overlay", map[string]interface{}{"path": path, "page": 2})
	if resp.Error == nil {
		t.Error("expected an error for a missing page")
	}
}

func TestTextRecognize(t *testing.T) {
	if info := ocr.Probe(ocr.Engine{}); !info.Available {
		t.Skipf("Tesseract not available: %s", info.Error)
	}

	s := newTestServer(t, darkModel)
	path := createTestImageFile(t, testInputSize, testInputSize, image.Rect(10, 10, 54, 30))

	var result textRecognizeResult
	decodeResult(t, callTool(t, s, "text_recognize", map[string]interface{}{"path": path}), &result)

	if len(result.Pages) != 1 {
		t.Fatalf("got %d pages, want 1", len(result.Pages))
	}
	words := result.Pages[0].Words
	if len(words) != 1 {
		t.Fatalf("got %d words, want one per detected box", len(words))
	}
	if words[0].DetScore < 0.89 || words[0].Confidence < 0 || words[0].Confidence > 1 {
		t.Errorf("word = %+v", words[0])
	}
}

func TestOutlines(t *testing.T) {
	boxes := []detection.Box{{
		Polygon: []detection.Point{{X: 1.4, Y: 2.6}, {X: 10, Y: 2.6}, {X: 10, Y: 8}, {X: 1.4, Y: 8}},
		Score:   0.876,
	}}

	got := outlines(boxes)
	if len(got) != 1 {
		t.Fatalf("got %d outlines", len(got))
	}
	want := []image.Point{{1, 3}, {10, 3}, {10, 8}, {1, 8}}
	for i, p := range want {
		if got[0].Points[i] != p {
			t.Errorf("point %d = %v, want %v", i, got[0].Points[i], p)
		}
	}
	if got[0].Label != "0.88" {
		t.Errorf("label = %q, want 0.88", got[0].Label)
	}
}
