package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ironsheep/textdet/internal/detection"
	"github.com/ironsheep/textdet/internal/documents"
	apperrors "github.com/ironsheep/textdet/internal/errors"
	"github.com/ironsheep/textdet/internal/imaging"
	"github.com/ironsheep/textdet/internal/ocr"
	"github.com/ironsheep/textdet/internal/predictor"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "text_detect").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// Every call is assigned a request id, attached to its log lines and
// returned under _meta.request_id. The response wraps the tool result in
// MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}],
//	  "_meta": {"request_id": "<uuid>"}
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000
// whose data carries the error code and the request id.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	requestID := uuid.NewString()
	logger := s.logger.With("request_id", requestID, "tool", params.Name)
	start := time.Now()
	logger.DebugContext(ctx, "tool call started")

	result, err := s.executeTool(ctx, logger, params.Name, params.Arguments)
	if err != nil {
		logger.WarnContext(ctx, "tool call failed", "error", err, "duration", time.Since(start))
		return s.errorResponse(req.ID, -32000, "Tool execution failed", errorData(err, requestID))
	}
	logger.InfoContext(ctx, "tool call complete", "duration", time.Since(start))

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
			"_meta": map[string]interface{}{
				"request_id": requestID,
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, logger *slog.Logger, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "document_info":
		return s.handleDocumentInfo(args)
	case "document_layout":
		return s.handleDocumentLayout(args)
	case "text_detect":
		return s.handleTextDetect(ctx, logger, args)
	case "text_recognize":
		return s.handleTextRecognize(ctx, logger, args)
	case "detection_overlay":
		return s.handleDetectionOverlay(ctx, logger, args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorData describes err for a JSON-RPC error response.
func errorData(err error, requestID string) map[string]interface{} {
	var data map[string]interface{}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		data = appErr.ToMap()
		// Keep the outer context added by wrapping.
		data["message"] = err.Error()
	} else {
		data = map[string]interface{}{"message": err.Error()}
	}
	data["request_id"] = requestID
	return data
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		args = []byte("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// === Document Handlers ===

type documentInfoArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleDocumentInfo(args json.RawMessage) (interface{}, error) {
	var a documentInfoArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, apperrors.NewUnsupportedTypeError("path is required")
	}
	return documents.Inspect(documents.FromPath(a.Path))
}

type documentLayoutArgs struct {
	Path  string `json:"path"`
	Pages []int  `json:"pages,omitempty"`
}

type documentLayoutResult struct {
	Source string                 `json:"source"`
	Pages  []documents.PageLayout `json:"pages"`
}

func (s *Server) handleDocumentLayout(args json.RawMessage) (interface{}, error) {
	var a documentLayoutArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, apperrors.NewUnsupportedTypeError("path is required")
	}
	pages, err := documents.ReadLayout(documents.FromPath(a.Path), a.Pages...)
	if err != nil {
		return nil, err
	}
	return documentLayoutResult{Source: a.Path, Pages: pages}, nil
}

// sourceArgs names a document and the pages to use from it.
type sourceArgs struct {
	Path  string  `json:"path,omitempty"`
	URL   string  `json:"url,omitempty"`
	Pages []int   `json:"pages,omitempty"`
	DPI   float64 `json:"dpi,omitempty"`
}

func (a sourceArgs) name() string {
	if a.URL != "" {
		return a.URL
	}
	return a.Path
}

type indexedPage struct {
	index int
	page  imaging.Page
}

// loadPages reads the requested pages of the source, in the order
// requested, or every page when none are named. Only those pages are
// rendered.
func (s *Server) loadPages(ctx context.Context, a sourceArgs) ([]indexedPage, error) {
	opts := s.cfg.RenderOptions()
	if a.DPI > 0 {
		opts = append(opts, documents.WithDPI(a.DPI))
	}
	if len(a.Pages) > 0 {
		opts = append(opts, documents.WithPages(a.Pages...))
	}

	var pages []imaging.Page
	var err error
	switch {
	case a.Path != "" && a.URL != "":
		return nil, apperrors.NewUnsupportedTypeError("give either path or url, not both")
	case a.Path != "":
		pages, err = documents.ReadPages(ctx, documents.FromPath(a.Path), opts...)
	case a.URL != "":
		pages, err = documents.ReadURLPages(ctx, s.client, a.URL, opts...)
	default:
		return nil, apperrors.NewUnsupportedTypeError("path or url is required")
	}
	if err != nil {
		return nil, err
	}

	out := make([]indexedPage, len(pages))
	for k, p := range pages {
		index := k
		if len(a.Pages) > 0 {
			index = a.Pages[k]
		}
		out[k] = indexedPage{index: index, page: p}
	}
	return out, nil
}

// detectArgs adds per-call post-processing overrides to a source.
type detectArgs struct {
	sourceArgs
	Geometry   string   `json:"geometry,omitempty"`
	BinThresh  *float64 `json:"bin_thresh,omitempty"`
	BoxThresh  *float64 `json:"box_thresh,omitempty"`
	MinSizeBox *int     `json:"min_size_box,omitempty"`
}

func (a detectArgs) overridden() bool {
	return a.Geometry != "" || a.BinThresh != nil || a.BoxThresh != nil || a.MinSizeBox != nil
}

// predictorFor returns the shared predictor, or a one-off predictor when
// the call overrides post-processing. It also returns the geometry name.
func (s *Server) predictorFor(a detectArgs, logger *slog.Logger) (*predictor.Predictor, string, error) {
	if !a.overridden() {
		return s.predictor, s.cfg.Postprocess.Geometry, nil
	}

	cfg := *s.cfg
	if a.Geometry != "" {
		cfg.Postprocess.Geometry = strings.ToLower(a.Geometry)
	}
	if a.BinThresh != nil {
		cfg.Postprocess.BinThresh = *a.BinThresh
	}
	if a.BoxThresh != nil {
		cfg.Postprocess.BoxThresh = *a.BoxThresh
	}
	if a.MinSizeBox != nil {
		cfg.Postprocess.MinSizeBox = *a.MinSizeBox
	}
	p, err := cfg.Predictor(logger)
	if err != nil {
		return nil, "", err
	}
	return p, cfg.Postprocess.Geometry, nil
}

// pageDetections holds the boxes found on one page, in page pixels.
type pageDetections struct {
	Page   int             `json:"page"`
	Width  int             `json:"width"`
	Height int             `json:"height"`
	Count  int             `json:"count"`
	Boxes  []detection.Box `json:"boxes"`
}

type textDetectResult struct {
	Source     string           `json:"source"`
	Model      string           `json:"model"`
	Geometry   string           `json:"geometry"`
	Pages      []pageDetections `json:"pages"`
	TotalBoxes int              `json:"total_boxes"`
}

// detect runs the pipeline on the requested pages and maps the boxes onto
// the page rasters.
func (s *Server) detect(ctx context.Context, logger *slog.Logger, a detectArgs) (*textDetectResult, []indexedPage, error) {
	p, geometry, err := s.predictorFor(a, logger)
	if err != nil {
		return nil, nil, err
	}
	pages, err := s.loadPages(ctx, a.sourceArgs)
	if err != nil {
		return nil, nil, err
	}
	logger.DebugContext(ctx, "pages loaded", "source", a.name(), "pages", len(pages))

	rasters := make([]imaging.Page, len(pages))
	for i, ip := range pages {
		rasters[i] = ip.page
	}
	raw, err := p.Predict(ctx, rasters)
	if err != nil {
		return nil, nil, err
	}

	result := &textDetectResult{
		Source:   a.name(),
		Model:    s.cfg.Model.Name,
		Geometry: geometry,
		Pages:    make([]pageDetections, len(pages)),
	}
	for i, ip := range pages {
		boxes := p.ToPage(raw[i], ip.page.Height, ip.page.Width)
		result.Pages[i] = pageDetections{
			Page:   ip.index,
			Width:  ip.page.Width,
			Height: ip.page.Height,
			Count:  len(boxes),
			Boxes:  boxes,
		}
		result.TotalBoxes += len(boxes)
	}
	return result, pages, nil
}

// === Detection Handlers ===

func (s *Server) handleTextDetect(ctx context.Context, logger *slog.Logger, args json.RawMessage) (interface{}, error) {
	var a detectArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	result, _, err := s.detect(ctx, logger, a)
	return result, err
}

type textRecognizeArgs struct {
	detectArgs
	Language string `json:"language,omitempty"`
}

// pageText holds the recognized boxes of one page.
type pageText struct {
	Page  int        `json:"page"`
	Words []ocr.Word `json:"words"`

	// Text is the text of every box, one box per line.
	Text string `json:"text"`
}

type textRecognizeResult struct {
	Source string     `json:"source"`
	Model  string     `json:"model"`
	Pages  []pageText `json:"pages"`
	Text   string     `json:"text"`
}

func (s *Server) handleTextRecognize(ctx context.Context, logger *slog.Logger, args json.RawMessage) (interface{}, error) {
	var a textRecognizeArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	det, pages, err := s.detect(ctx, logger, a.detectArgs)
	if err != nil {
		return nil, err
	}

	rec := *s.recognizer
	if a.Language != "" {
		rec.Language = a.Language
	}

	result := &textRecognizeResult{
		Source: det.Source,
		Model:  det.Model,
		Pages:  make([]pageText, len(pages)),
	}
	texts := make([]string, 0, len(pages))
	for i, ip := range pages {
		words, err := rec.Recognize(ctx, ip.page.ToImage(), det.Pages[i].Boxes)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", ip.index, err)
		}

		lines := make([]string, 0, len(words))
		for _, w := range words {
			if w.Text != "" {
				lines = append(lines, w.Text)
			}
		}
		result.Pages[i] = pageText{Page: ip.index, Words: words, Text: strings.Join(lines, "\n")}
		texts = append(texts, result.Pages[i].Text)
	}
	result.Text = strings.Join(texts, "\n\n")
	return result, nil
}

type detectionOverlayArgs struct {
	detectArgs
	Page       int    `json:"page"`
	Color      string `json:"color,omitempty"`
	Thickness  *int   `json:"thickness,omitempty"`
	ShowLabels *bool  `json:"show_labels,omitempty"`
	OutputPath string `json:"output_path,omitempty"`
}

type detectionOverlayResult struct {
	*imaging.OverlayResult
	Page    int             `json:"page"`
	Boxes   []detection.Box `json:"boxes"`
	SavedTo string          `json:"saved_to,omitempty"`
}

func (s *Server) handleDetectionOverlay(ctx context.Context, logger *slog.Logger, args json.RawMessage) (interface{}, error) {
	var a detectionOverlayArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	a.Pages = []int{a.Page}

	opts := s.cfg.Overlay
	if a.Color != "" {
		opts.Color = a.Color
	}
	if a.Thickness != nil {
		opts.Thickness = *a.Thickness
	}
	if a.ShowLabels != nil {
		opts.ShowLabels = *a.ShowLabels
	}

	det, pages, err := s.detect(ctx, logger, a.detectArgs)
	if err != nil {
		return nil, err
	}
	boxes := det.Pages[0].Boxes
	img := pages[0].page.ToRGBA()

	if a.OutputPath == "" {
		overlay, err := imaging.RenderOverlay(img, outlines(boxes), opts)
		if err != nil {
			return nil, err
		}
		return &detectionOverlayResult{OverlayResult: overlay, Page: a.Page, Boxes: boxes}, nil
	}

	annotated, err := imaging.DrawDetections(img, outlines(boxes), opts)
	if err != nil {
		return nil, err
	}
	if err := imaging.SaveImage(a.OutputPath, annotated); err != nil {
		return nil, err
	}
	encoded, err := imaging.EncodePNGBase64(annotated)
	if err != nil {
		return nil, err
	}
	return &detectionOverlayResult{
		OverlayResult: &imaging.OverlayResult{
			Width:       annotated.Bounds().Dx(),
			Height:      annotated.Bounds().Dy(),
			ImageBase64: encoded,
			MimeType:    "image/png",
			Count:       len(boxes),
		},
		Page:    a.Page,
		Boxes:   boxes,
		SavedTo: a.OutputPath,
	}, nil
}

// outlines converts boxes to drawable outlines labelled with their score.
func outlines(boxes []detection.Box) []imaging.Outline {
	out := make([]imaging.Outline, len(boxes))
	for i, b := range boxes {
		pts := make([]image.Point, len(b.Polygon))
		for j, p := range b.Polygon {
			pts[j] = image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
		}
		out[i] = imaging.Outline{Points: pts, Label: fmt.Sprintf("%.2f", b.Score)}
	}
	return out
}
