package predictor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"log/slog"
	"strings"
	"testing"

	"github.com/ironsheep/textdet/internal/detection"
	apperrors "github.com/ironsheep/textdet/internal/errors"
	"github.com/ironsheep/textdet/internal/imaging"
	"github.com/ironsheep/textdet/internal/model"
	"github.com/ironsheep/textdet/internal/preprocess"
	"github.com/ironsheep/textdet/internal/tensor"
)

// markerModel emits, for each page, a probability block whose width encodes
// the page's red value, so results can be traced back to their page.
type markerModel struct {
	calls int
	opts  []model.Options
}

func (m *markerModel) Call(ctx context.Context, batch *tensor.Tensor, opts ...model.Option) (model.Output, error) {
	m.calls++
	m.opts = append(m.opts, model.Apply(opts...))

	n, h, w := batch.Dim(0), batch.Dim(1), batch.Dim(2)
	out := tensor.New(n, h, w, 1)
	for i := 0; i < n; i++ {
		// Mean 0.5, std 1: red in [0, 255] maps to [-0.5, 0.5].
		red := batch.At(i, 0, 0, 0) + 0.5
		width := 6 + int(red*20+0.5)
		for y := 4; y < 14; y++ {
			for x := 4; x < 4+width; x++ {
				out.Set(0.9, i, y, x, 0)
			}
		}
	}
	return model.Output{model.ProbaMapKey: out}, nil
}

func solidPage(h, w int, r uint8) imaging.Page {
	p := imaging.NewPage(h, w)
	for i := 0; i < len(p.Pix); i += 3 {
		p.Pix[i] = r
	}
	return p
}

func newTestPredictor(t *testing.T, batchSize int, m model.Model, opts ...Option) *Predictor {
	t.Helper()
	cfg := preprocess.DefaultConfig(40, 40)
	cfg.BatchSize = batchSize
	pre, err := preprocess.New(cfg)
	if err != nil {
		t.Fatalf("preprocess.New failed: %v", err)
	}
	post, err := detection.NewPostProcessor(detection.DefaultConfig(), detection.StraightBoxes)
	if err != nil {
		t.Fatalf("NewPostProcessor failed: %v", err)
	}
	return New(pre, m, post, opts...)
}

func TestPredict_OrderPreserved(t *testing.T) {
	for _, batchSize := range []int{1, 2, 3, 8} {
		m := &markerModel{}
		p := newTestPredictor(t, batchSize, m)

		reds := []uint8{0, 255, 51, 204, 102}
		pages := make([]imaging.Page, len(reds))
		for i, r := range reds {
			pages[i] = solidPage(20+i, 30, r)
		}

		results, err := p.Predict(context.Background(), pages)
		if err != nil {
			t.Fatalf("batch %d: Predict failed: %v", batchSize, err)
		}
		if len(results) != len(pages) {
			t.Fatalf("batch %d: got %d results, want %d", batchSize, len(results), len(pages))
		}
		if want := (len(pages) + batchSize - 1) / batchSize; m.calls != want {
			t.Errorf("batch %d: model called %d times, want %d", batchSize, m.calls, want)
		}

		for i, boxes := range results {
			if len(boxes) != 1 {
				t.Fatalf("batch %d page %d: got %d boxes", batchSize, i, len(boxes))
			}
			wantWidth := 6 + int(float64(reds[i])/255*20+0.5)
			if got := boxes[0].Bounds.Width(); got != wantWidth {
				t.Errorf("batch %d page %d: box width %d, want %d", batchSize, i, got, wantWidth)
			}
		}
	}
}

func TestPredict_Empty(t *testing.T) {
	m := &markerModel{}
	p := newTestPredictor(t, 2, m)

	results, err := p.Predict(context.Background(), nil)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if len(results) != 0 || m.calls != 0 {
		t.Errorf("got %d results and %d model calls, want none", len(results), m.calls)
	}
}

func TestPredict_InvalidPageNoPartialResults(t *testing.T) {
	m := &markerModel{}
	p := newTestPredictor(t, 1, m)

	pages := []imaging.Page{
		solidPage(10, 10, 0),
		{Height: 10, Width: 10, Channels: 4, Pix: make([]uint8, 400)},
	}
	results, err := p.Predict(context.Background(), pages)
	if !errors.Is(err, apperrors.ErrInvalidInputShape) {
		t.Fatalf("expected InvalidInputShape, got %v", err)
	}
	if results != nil {
		t.Errorf("expected no results, got %d", len(results))
	}
	if m.calls != 0 {
		t.Errorf("model called %d times before validation failed", m.calls)
	}
}

func TestPredict_ModelErrorPropagates(t *testing.T) {
	boom := errors.New("device lost")
	m := model.Func(func(ctx context.Context, batch *tensor.Tensor, opts ...model.Option) (model.Output, error) {
		return nil, boom
	})
	p := newTestPredictor(t, 1, m)

	_, err := p.Predict(context.Background(), []imaging.Page{solidPage(8, 8, 0)})
	if err != boom {
		t.Errorf("expected model error unchanged, got %v", err)
	}
}

func TestPredict_ContractViolation(t *testing.T) {
	m := model.Func(func(ctx context.Context, batch *tensor.Tensor, opts ...model.Option) (model.Output, error) {
		return model.Output{"logits": batch}, nil
	})
	p := newTestPredictor(t, 1, m)

	_, err := p.Predict(context.Background(), []imaging.Page{solidPage(8, 8, 0)})
	if !errors.Is(err, apperrors.ErrModelContractViolation) {
		t.Errorf("expected ModelContractViolation, got %v", err)
	}
}

func TestPredict_ForwardsOptions(t *testing.T) {
	m := &markerModel{}
	p := newTestPredictor(t, 1, m)

	pages := []imaging.Page{solidPage(8, 8, 0), solidPage(8, 8, 0)}
	if _, err := p.Predict(context.Background(), pages, model.WithTraining(true), model.WithParam("sigma", 3)); err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	for i, o := range m.opts {
		if !o.Training || o.Param("sigma", 0) != 3 {
			t.Errorf("call %d: options %+v", i, o)
		}
	}
}

func TestPredict_Logs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	p := newTestPredictor(t, 1, &markerModel{}, WithLogger(logger))

	if _, err := p.Predict(context.Background(), []imaging.Page{solidPage(8, 8, 0)}); err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if !strings.Contains(buf.String(), "detection complete") {
		t.Errorf("expected completion log, got %q", buf.String())
	}
}

func TestPredictImages(t *testing.T) {
	p := newTestPredictor(t, 2, &markerModel{})

	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	results, err := p.PredictImages(context.Background(), []image.Image{img, img, img})
	if err != nil {
		t.Fatalf("PredictImages failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("got %d results, want 3", len(results))
	}
}

func TestToPage(t *testing.T) {
	p := newTestPredictor(t, 1, &markerModel{})

	boxes := []detection.Box{{
		Coords: []float64{4, 4, 14, 14},
		Bounds: detection.Bounds{X1: 4, Y1: 4, X2: 13, Y2: 13},
		Score:  0.9,
	}}
	scaled := p.ToPage(boxes, 80, 20)

	want := []float64{2, 8, 7, 28}
	for i, v := range scaled[0].Coords {
		if v != want[i] {
			t.Errorf("coords = %v, want %v", scaled[0].Coords, want)
			break
		}
	}
}
