// Package config loads the settings of the detection pipeline and the
// server.
//
// Settings come from three layers, later layers winning:
//
//  1. built-in defaults (Default),
//  2. an optional YAML file named by TEXTDET_CONFIG,
//  3. environment variables: TEXTDET_MODEL, TEXTDET_GEOMETRY,
//     TEXTDET_LANGUAGE, TEXTDET_DPI and TESSDATA_PREFIX.
//
// Before the environment is read, Load imports a .env file (or the file
// named by TEXTDET_ENV_FILE) with godotenv. Variables already present in the
// process environment are never overwritten by it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/textdet/internal/detection"
	"github.com/ironsheep/textdet/internal/documents"
	apperrors "github.com/ironsheep/textdet/internal/errors"
	"github.com/ironsheep/textdet/internal/imaging"
	"github.com/ironsheep/textdet/internal/model"
	"github.com/ironsheep/textdet/internal/ocr"
	"github.com/ironsheep/textdet/internal/predictor"
	"github.com/ironsheep/textdet/internal/preprocess"
)

// Environment variables read by Load.
const (
	EnvConfigFile = "TEXTDET_CONFIG"
	EnvEnvFile    = "TEXTDET_ENV_FILE"
	EnvModel      = "TEXTDET_MODEL"
	EnvGeometry   = "TEXTDET_GEOMETRY"
	EnvLanguage   = "TEXTDET_LANGUAGE"
	EnvDPI        = "TEXTDET_DPI"
	EnvTessdata   = "TESSDATA_PREFIX"
)

// Model names accepted in ModelConfig.Name.
const (
	ModelContrast  = "contrast"
	ModelTesseract = "tesseract"
)

// DefaultInputSize is the model input height and width.
const DefaultInputSize = 1024

// Config is the complete configuration.
type Config struct {
	Preprocess  preprocess.Config      `yaml:"preprocess" json:"preprocess"`
	Postprocess PostprocessConfig      `yaml:"postprocess" json:"postprocess"`
	Model       ModelConfig            `yaml:"model" json:"model"`
	Documents   DocumentsConfig        `yaml:"documents" json:"documents"`
	Overlay     imaging.OverlayOptions `yaml:"overlay" json:"overlay"`
}

// PostprocessConfig adds the geometry strategy to the thresholds.
type PostprocessConfig struct {
	detection.Config `yaml:",inline"`

	// Geometry is "straight", "rotated" or "polygon".
	Geometry string `yaml:"geometry" json:"geometry"`
}

// ModelConfig selects and tunes the detection model.
type ModelConfig struct {
	// Name is ModelContrast or ModelTesseract.
	Name string `yaml:"name" json:"name"`

	Contrast model.Contrast `yaml:"contrast" json:"contrast"`

	// Tesseract configures both the Tesseract model and recognition.
	Tesseract ocr.Recognizer `yaml:"tesseract" json:"tesseract"`
}

// DocumentsConfig controls page sources.
type DocumentsConfig struct {
	// DPI is the PDF rendering resolution.
	DPI float64 `yaml:"dpi" json:"dpi"`

	// Workers bounds concurrent page rendering; 0 uses one per CPU.
	Workers int `yaml:"workers" json:"workers"`

	// FetchTimeout bounds web page downloads.
	FetchTimeout time.Duration `yaml:"fetch_timeout" json:"fetch_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	pre := preprocess.DefaultConfig(DefaultInputSize, DefaultInputSize)
	return &Config{
		Preprocess: pre,
		Postprocess: PostprocessConfig{
			Config:   detection.DefaultConfig(),
			Geometry: detection.GeometryStraight,
		},
		Model: ModelConfig{
			Name:      ModelContrast,
			Contrast:  *model.NewContrast(pre.Mean, pre.Std),
			Tesseract: *ocr.NewRecognizer(ocr.Engine{Language: ocr.DefaultLanguage}),
		},
		Documents: DocumentsConfig{
			DPI:          documents.DefaultDPI,
			FetchTimeout: 30 * time.Second,
		},
		Overlay: imaging.OverlayOptions{
			Thickness:  2,
			ShowLabels: true,
		},
	}
}

// Load builds the configuration from the defaults, the file named by
// TEXTDET_CONFIG and the environment, and validates it.
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	cfg := Default()
	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.ReadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFile imports TEXTDET_ENV_FILE, or .env when that is unset. A
// missing default .env is not an error; a missing named file is.
func loadEnvFile() error {
	path, named := os.LookupEnv(EnvEnvFile)
	if !named || path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err == nil || (!named && errors.Is(err, fs.ErrNotExist)) {
		return nil
	}
	return apperrors.NewInvalidConfigError(EnvEnvFile, fmt.Sprintf("failed to load %s: %v", path, err))
}

// ReadFile merges a YAML file into c. Keys absent from the file keep their
// current values.
func (c *Config) ReadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperrors.NewFileNotFoundError(path, err)
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return apperrors.NewInvalidConfigError("config file", fmt.Sprintf("%s: %v", path, err))
	}
	return nil
}

// ApplyEnv overrides c with the variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvModel); ok && v != "" {
		c.Model.Name = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup(EnvGeometry); ok && v != "" {
		c.Postprocess.Geometry = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup(EnvLanguage); ok && v != "" {
		c.Model.Tesseract.Language = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvTessdata); ok && v != "" {
		c.Model.Tesseract.TessdataPrefix = v
	}
	if v, ok := lookup(EnvDPI); ok && v != "" {
		dpi, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return apperrors.NewInvalidConfigError(EnvDPI, fmt.Sprintf("not a number: %q", v))
		}
		c.Documents.DPI = dpi
	}
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Preprocess.Validate(); err != nil {
		return err
	}
	if err := c.Postprocess.Validate(); err != nil {
		return err
	}
	if _, err := detection.ParseGeometry(c.Postprocess.Geometry); err != nil {
		return apperrors.NewInvalidConfigError("geometry", err.Error())
	}

	switch c.Model.Name {
	case ModelContrast:
		m := c.Model.Contrast
		if m.Sigma < 0 || m.Gain <= 0 {
			return apperrors.NewInvalidConfigError("model.contrast",
				fmt.Sprintf("sigma must be >= 0 and gain > 0, got %v and %v", m.Sigma, m.Gain))
		}
	case ModelTesseract:
	default:
		return apperrors.NewInvalidConfigError("model.name",
			fmt.Sprintf("unknown model %q (want %s or %s)", c.Model.Name, ModelContrast, ModelTesseract))
	}
	if c.Model.Tesseract.Padding < 0 || c.Model.Tesseract.MinHeight < 0 {
		return apperrors.NewInvalidConfigError("model.tesseract", "padding and min_height must be >= 0")
	}

	if c.Documents.DPI <= 0 {
		return apperrors.NewInvalidConfigError("documents.dpi", fmt.Sprintf("must be positive, got %v", c.Documents.DPI))
	}
	if c.Documents.Workers < 0 {
		return apperrors.NewInvalidConfigError("documents.workers", fmt.Sprintf("must be >= 0, got %d", c.Documents.Workers))
	}
	if c.Documents.FetchTimeout < 0 {
		return apperrors.NewInvalidConfigError("documents.fetch_timeout", "must be >= 0")
	}

	if c.Overlay.Color != "" {
		if _, err := colorful.Hex(c.Overlay.Color); err != nil {
			return apperrors.NewInvalidConfigError("overlay.color", fmt.Sprintf("%q is not a #RRGGBB colour", c.Overlay.Color))
		}
	}
	if c.Overlay.Thickness < 0 {
		return apperrors.NewInvalidConfigError("overlay.thickness", "must be >= 0")
	}
	return nil
}

// Preprocessor builds the preprocessor.
func (c *Config) Preprocessor() (*preprocess.Preprocessor, error) {
	return preprocess.New(c.Preprocess)
}

// PostProcessor builds the post-processor with the configured geometry.
func (c *Config) PostProcessor() (*detection.PostProcessor, error) {
	geometry, err := detection.ParseGeometry(c.Postprocess.Geometry)
	if err != nil {
		return nil, apperrors.NewInvalidConfigError("geometry", err.Error())
	}
	return detection.NewPostProcessor(c.Postprocess.Config, geometry)
}

// Model builds the configured detection model. Both models are given the
// preprocessing statistics so they can recover the original pixels.
func (c *Config) Model() (model.Model, error) {
	mean, std := c.Preprocess.Mean, c.Preprocess.Std
	switch c.Model.Name {
	case ModelContrast:
		m := c.Model.Contrast
		m.Mean, m.Std = mean, std
		return &m, nil
	case ModelTesseract:
		return ocr.NewTesseractModel(c.Model.Tesseract.Engine, mean, std), nil
	}
	return nil, apperrors.NewInvalidConfigError("model.name", fmt.Sprintf("unknown model %q", c.Model.Name))
}

// Recognizer builds the box recognizer.
func (c *Config) Recognizer() *ocr.Recognizer {
	r := c.Model.Tesseract
	return &r
}

// Predictor assembles the full detection pipeline.
func (c *Config) Predictor(logger *slog.Logger) (*predictor.Predictor, error) {
	pre, err := c.Preprocessor()
	if err != nil {
		return nil, err
	}
	post, err := c.PostProcessor()
	if err != nil {
		return nil, err
	}
	m, err := c.Model()
	if err != nil {
		return nil, err
	}
	return predictor.New(pre, m, post, predictor.WithLogger(logger)), nil
}

// RenderOptions returns the PDF rendering options.
func (c *Config) RenderOptions() []documents.RenderOption {
	opts := []documents.RenderOption{documents.WithDPI(c.Documents.DPI)}
	if c.Documents.Workers > 0 {
		opts = append(opts, documents.WithWorkers(c.Documents.Workers))
	}
	return opts
}
