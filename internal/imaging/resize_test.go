package imaging

import (
	"image/color"
	"testing"
)

func TestParseInterpolation(t *testing.T) {
	for _, in := range Interpolations {
		got, err := ParseInterpolation(string(in))
		if err != nil {
			t.Errorf("ParseInterpolation(%q) failed: %v", in, err)
		}
		if got != in {
			t.Errorf("ParseInterpolation(%q) = %q", in, got)
		}
	}

	if got, err := ParseInterpolation(" BiLinear "); err != nil || got != Bilinear {
		t.Errorf("case-insensitive parse = %q, %v", got, err)
	}

	if _, err := ParseInterpolation("cubic-spline"); err == nil {
		t.Error("expected error for unknown interpolation")
	}
}

func TestInterpolationFilter(t *testing.T) {
	for _, in := range Interpolations {
		f, err := in.Filter()
		if err != nil {
			t.Errorf("%s: %v", in, err)
			continue
		}
		if in != Nearest && f.Support <= 0 {
			t.Errorf("%s: support = %v", in, f.Support)
		}
	}

	if _, err := Interpolation("bogus").Filter(); err == nil {
		t.Error("expected error for unknown interpolation")
	}
}

func TestLanczos5Kernel(t *testing.T) {
	if got := lanczos5Filter.Kernel(0); got != 1 {
		t.Errorf("kernel(0) = %v, want 1", got)
	}
	if got := lanczos5Filter.Kernel(5.5); got != 0 {
		t.Errorf("kernel(5.5) = %v, want 0", got)
	}
	// Integer offsets are zero crossings.
	if got := lanczos5Filter.Kernel(2); got > 1e-9 || got < -1e-9 {
		t.Errorf("kernel(2) = %v, want 0", got)
	}
}

func TestResizePage(t *testing.T) {
	page := FromImage(createInMemoryImage(40, 30, color.RGBA{10, 120, 240, 255}))

	for _, in := range Interpolations {
		t.Run(string(in), func(t *testing.T) {
			out, err := ResizePage(page, 16, 24, in)
			if err != nil {
				t.Fatalf("ResizePage failed: %v", err)
			}
			if out.Height != 16 || out.Width != 24 {
				t.Fatalf("size = %dx%d, want 16x24", out.Height, out.Width)
			}
			// A flat image stays flat under any normalized filter.
			r, g, b := out.At(12, 8)
			if absInt(int(r)-10) > 1 || absInt(int(g)-120) > 1 || absInt(int(b)-240) > 1 {
				t.Errorf("center = (%d,%d,%d), want about (10,120,240)", r, g, b)
			}
		})
	}
}

func TestResizePage_SameSize(t *testing.T) {
	page := NewPage(5, 5)
	out, err := ResizePage(page, 5, 5, Bilinear)
	if err != nil {
		t.Fatalf("ResizePage failed: %v", err)
	}
	if &out.Pix[0] != &page.Pix[0] {
		t.Error("expected same-size resize to return the page unchanged")
	}
}

func TestResizePage_InvalidSize(t *testing.T) {
	if _, err := ResizePage(NewPage(5, 5), 0, 5, Bilinear); err == nil {
		t.Error("expected error for zero height")
	}
}
