package detection

// Bitmap is a binary mask the size of a probability map, row-major.
type Bitmap struct {
	Width  int
	Height int
	Pix    []bool
}

// NewBitmap allocates an all-false mask.
func NewBitmap(width, height int) *Bitmap {
	return &Bitmap{Width: width, Height: height, Pix: make([]bool, width*height)}
}

// At reports whether (x, y) is set. Out-of-bounds coordinates are unset.
func (b *Bitmap) At(x, y int) bool {
	if x < 0 || x >= b.Width || y < 0 || y >= b.Height {
		return false
	}
	return b.Pix[y*b.Width+x]
}

// Set stores v at (x, y).
func (b *Bitmap) Set(x, y int, v bool) {
	b.Pix[y*b.Width+x] = v
}

// Count returns the number of set pixels.
func (b *Bitmap) Count() int {
	n := 0
	for _, v := range b.Pix {
		if v {
			n++
		}
	}
	return n
}

// SubsetOf reports whether every pixel set in b is also set in other.
func (b *Bitmap) SubsetOf(other *Bitmap) bool {
	if b.Width != other.Width || b.Height != other.Height {
		return false
	}
	for i, v := range b.Pix {
		if v && !other.Pix[i] {
			return false
		}
	}
	return true
}

// Binarize sets every pixel whose probability is strictly greater than
// thresh. A pixel exactly at the threshold stays background.
func Binarize(p ProbabilityMap, thresh float64) *Bitmap {
	out := NewBitmap(p.Width, p.Height)
	for i, v := range p.Data {
		out.Pix[i] = float64(v) > thresh
	}
	return out
}

// Erode applies a 3x3 square erosion. Neighbours outside the mask are
// ignored, so a pixel on the border survives when its in-bounds
// neighbourhood is fully set.
func Erode(b *Bitmap) *Bitmap {
	return morph(b, true)
}

// Dilate applies a 3x3 square dilation. Neighbours outside the mask are
// ignored.
func Dilate(b *Bitmap) *Bitmap {
	return morph(b, false)
}

// Open is an erosion followed by a dilation with the same 3x3 element.
// It removes specks and thin bridges; the result is always a subset of b.
func Open(b *Bitmap) *Bitmap {
	return Dilate(Erode(b))
}

// morph runs the 3x3 min (erode) or max (dilate) filter as two 1x3 passes.
func morph(b *Bitmap, erode bool) *Bitmap {
	w, h := b.Width, b.Height
	tmp := NewBitmap(w, h)
	out := NewBitmap(w, h)

	// The window reduces with AND for erosion and OR for dilation; both
	// start from the centre pixel.
	combine := func(acc, v bool) bool {
		if erode {
			return acc && v
		}
		return acc || v
	}

	for y := 0; y < h; y++ {
		row := y * w
		for x := 0; x < w; x++ {
			acc := b.Pix[row+x]
			if x > 0 {
				acc = combine(acc, b.Pix[row+x-1])
			}
			if x < w-1 {
				acc = combine(acc, b.Pix[row+x+1])
			}
			tmp.Pix[row+x] = acc
		}
	}

	for y := 0; y < h; y++ {
		row := y * w
		for x := 0; x < w; x++ {
			acc := tmp.Pix[row+x]
			if y > 0 {
				acc = combine(acc, tmp.Pix[row-w+x])
			}
			if y < h-1 {
				acc = combine(acc, tmp.Pix[row+w+x])
			}
			out.Pix[row+x] = acc
		}
	}

	return out
}
