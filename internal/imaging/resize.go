package imaging

import (
	"fmt"
	"math"
	"strings"

	"github.com/disintegration/imaging"
)

// Interpolation selects the resampling filter used when resizing pages.
type Interpolation string

const (
	Bilinear Interpolation = "bilinear"
	Nearest  Interpolation = "nearest"
	Bicubic  Interpolation = "bicubic"
	Area     Interpolation = "area"
	Lanczos3 Interpolation = "lanczos3"
	Lanczos5 Interpolation = "lanczos5"
)

// Interpolations lists every supported interpolation name.
var Interpolations = []Interpolation{Bilinear, Nearest, Bicubic, Area, Lanczos3, Lanczos5}

// ParseInterpolation converts a case-insensitive name into an Interpolation.
func ParseInterpolation(name string) (Interpolation, error) {
	in := Interpolation(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Interpolations {
		if in == known {
			return in, nil
		}
	}
	return "", fmt.Errorf("unknown interpolation %q", name)
}

// lanczos5Filter is a 5-lobe Lanczos kernel. disintegration/imaging only
// ships the 3-lobe variant.
var lanczos5Filter = imaging.ResampleFilter{
	Support: 5.0,
	Kernel: func(x float64) float64 {
		x = math.Abs(x)
		if x < 5.0 {
			return sinc(x) * sinc(x/5.0)
		}
		return 0
	},
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}

// Filter returns the resample filter backing the interpolation.
func (i Interpolation) Filter() (imaging.ResampleFilter, error) {
	switch i {
	case Bilinear:
		return imaging.Linear, nil
	case Nearest:
		return imaging.NearestNeighbor, nil
	case Bicubic:
		return imaging.CatmullRom, nil
	case Area:
		return imaging.Box, nil
	case Lanczos3:
		return imaging.Lanczos, nil
	case Lanczos5:
		return lanczos5Filter, nil
	default:
		return imaging.ResampleFilter{}, fmt.Errorf("unknown interpolation %q", string(i))
	}
}

// ResizePage resizes a page to exactly height x width, ignoring aspect ratio.
// A page that already has the target size is returned unchanged.
func ResizePage(p Page, height, width int, interp Interpolation) (Page, error) {
	if height <= 0 || width <= 0 {
		return Page{}, fmt.Errorf("invalid target size %dx%d", height, width)
	}
	if p.Height == height && p.Width == width {
		return p, nil
	}
	filter, err := interp.Filter()
	if err != nil {
		return Page{}, err
	}
	resized := imaging.Resize(p.ToImage(), width, height, filter)
	return FromImage(resized), nil
}
