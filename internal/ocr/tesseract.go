package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/ironsheep/textdet/internal/detection"
	apperrors "github.com/ironsheep/textdet/internal/errors"
	"github.com/ironsheep/textdet/internal/imaging"
	"github.com/ironsheep/textdet/internal/model"
	"github.com/ironsheep/textdet/internal/tensor"
)

// DefaultLanguage is the Tesseract language used when none is set.
const DefaultLanguage = "eng"

// Engine selects the Tesseract language data.
type Engine struct {
	// Language is a Tesseract language code such as "eng" or "deu+fra".
	Language string `yaml:"language" json:"language"`

	// TessdataPrefix is the directory holding *.traineddata files. Empty
	// uses Tesseract's own lookup (the TESSDATA_PREFIX variable, then the
	// compiled-in path).
	TessdataPrefix string `yaml:"tessdata_prefix" json:"tessdata_prefix,omitempty"`
}

// client opens a Tesseract handle configured for e. The caller closes it.
func (e Engine) client() (*gosseract.Client, error) {
	client := gosseract.NewClient()

	if e.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(e.TessdataPrefix); err != nil {
			client.Close()
			return nil, apperrors.Wrap(apperrors.ErrorOCRFailed, err, "failed to set tessdata path")
		}
	}

	lang := e.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	if err := client.SetLanguage(strings.Split(lang, "+")...); err != nil {
		client.Close()
		return nil, apperrors.Wrap(apperrors.ErrorOCRFailed, err, "failed to set language %q", lang)
	}
	return client, nil
}

// TesseractModel is a detection model backed by Tesseract's layout
// analysis. Each word Tesseract finds is painted into the probability map
// with its confidence; everything else is 0.
type TesseractModel struct {
	Engine `yaml:",inline"`

	// Mean and Std undo the preprocessing normalization.
	Mean [3]float64 `yaml:"-" json:"-"`
	Std  [3]float64 `yaml:"-" json:"-"`
}

// NewTesseractModel returns a model for input normalized with mean and std.
func NewTesseractModel(engine Engine, mean, std [3]float64) *TesseractModel {
	return &TesseractModel{Engine: engine, Mean: mean, Std: std}
}

// Call implements model.Model. The "min_confidence" parameter drops words
// scored below it.
func (m *TesseractModel) Call(ctx context.Context, batch *tensor.Tensor, opts ...model.Option) (model.Output, error) {
	if batch == nil || batch.Rank() != 4 || batch.Dim(3) != imaging.PageChannels {
		var shape []int
		if batch != nil {
			shape = batch.Shape
		}
		return nil, fmt.Errorf("tesseract model expects a (batch, H, W, 3) tensor, got %v", shape)
	}
	minConf := model.Apply(opts...).Param("min_confidence", 0)

	client, err := m.client()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	n, h, w := batch.Dim(0), batch.Dim(1), batch.Dim(2)
	out := tensor.New(n, h, w, 1)
	for i, page := range batch.Unstack() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := encodePNG(model.Denormalize(page, m.Mean, m.Std))
		if err != nil {
			return nil, err
		}
		if err := client.SetImageFromBytes(data); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrorOCRFailed, err, "failed to set image for page %d", i)
		}
		boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrorOCRFailed, err, "failed to get word boxes for page %d", i)
		}

		dst := out.Data[i*h*w : (i+1)*h*w]
		for _, box := range boxes {
			conf := float64(box.Confidence) / 100.0
			if strings.TrimSpace(box.Word) == "" || conf < minConf {
				continue
			}
			paint(dst, w, box.Box.Intersect(image.Rect(0, 0, w, h)), float32(conf))
		}
	}
	return model.Output{model.ProbaMapKey: out}, nil
}

// paint raises every pixel of r in a row-major w-wide map to at least v.
func paint(dst []float32, w int, r image.Rectangle, v float32) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := dst[y*w : (y+1)*w]
		for x := r.Min.X; x < r.Max.X; x++ {
			if v > row[x] {
				row[x] = v
			}
		}
	}
}

// Word is the recognized content of one detected box.
type Word struct {
	Text string `json:"text"`

	// Confidence is Tesseract's mean word confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// Bounds is the box's pixel rectangle on the page.
	Bounds detection.Bounds `json:"bounds"`

	// DetScore is the detection score of the box.
	DetScore float64 `json:"det_score"`
}

// Default crop settings.
const (
	DefaultPadding   = 2
	DefaultMinHeight = 32
)

// Recognizer reads the text inside detected boxes.
type Recognizer struct {
	Engine `yaml:",inline"`

	// Padding grows each crop on every side, in pixels.
	Padding int `yaml:"padding" json:"padding"`

	// MinHeight upsamples shorter crops; 0 disables scaling.
	MinHeight int `yaml:"min_height" json:"min_height"`
}

// NewRecognizer returns a recognizer with the default crop settings.
func NewRecognizer(engine Engine) *Recognizer {
	return &Recognizer{Engine: engine, Padding: DefaultPadding, MinHeight: DefaultMinHeight}
}

// Recognize crops each box's bounding rectangle out of page and reads it as
// a single text line. Boxes must be in page coordinates. Words are returned
// in box order; a box clipped away by the page yields an empty Word.
func (r *Recognizer) Recognize(ctx context.Context, page image.Image, boxes []detection.Box) ([]Word, error) {
	words := make([]Word, len(boxes))
	if len(boxes) == 0 {
		return words, nil
	}

	client, err := r.client()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorOCRFailed, err, "failed to set page segmentation mode")
	}

	origin := page.Bounds().Min
	for i, box := range boxes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		words[i] = Word{Bounds: box.Bounds, DetScore: box.Score}
		rect := image.Rect(box.Bounds.X1, box.Bounds.Y1, box.Bounds.X2+1, box.Bounds.Y2+1).Add(origin)
		crop, err := imaging.CropRegion(page, rect, r.Padding)
		if err != nil {
			continue
		}

		data, err := encodePNG(imaging.ScaleRegion(crop, r.MinHeight))
		if err != nil {
			return nil, err
		}
		if err := client.SetImageFromBytes(data); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrorOCRFailed, err, "failed to set image for box %d", i)
		}
		found, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrorOCRFailed, err, "failed to read box %d", i)
		}

		parts := make([]string, 0, len(found))
		var conf float64
		for _, f := range found {
			text := strings.TrimSpace(f.Word)
			if text == "" {
				continue
			}
			parts = append(parts, text)
			conf += float64(f.Confidence) / 100.0
		}
		if len(parts) > 0 {
			words[i].Text = strings.Join(parts, " ")
			words[i].Confidence = math.Min(1, conf/float64(len(parts)))
		}
	}
	return words, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// Info reports whether Tesseract can be used.
type Info struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Language  string `json:"language"`
	Error     string `json:"error,omitempty"`
}

// Probe opens and configures a Tesseract handle for e and reports the
// outcome. Missing language data shows up here as Available == false.
func Probe(e Engine) Info {
	lang := e.Language
	if lang == "" {
		lang = DefaultLanguage
	}

	client, err := e.client()
	if err != nil {
		return Info{Language: lang, Error: err.Error()}
	}
	defer client.Close()

	// Language data is only loaded once an image is set.
	data, err := encodePNG(image.NewGray(image.Rect(0, 0, 8, 8)))
	if err == nil {
		err = client.SetImageFromBytes(data)
	}
	if err == nil {
		_, err = client.Text()
	}
	if err != nil {
		return Info{Language: lang, Error: err.Error()}
	}
	return Info{Available: true, Version: client.Version(), Language: lang}
}
