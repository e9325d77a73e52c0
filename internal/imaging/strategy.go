package imaging

import (
	"errors"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Strategy names, stored as Submission.Approach.
const (
	ApproachOriginal   = "original"
	ApproachGrayscale  = "grayscale"
	ApproachContrast   = "contrast"
	ApproachRedChannel = "red-channel"
	ApproachBinarized  = "binarized"
	ApproachInverted   = "inverted"
)

var (
	// ErrFlatImage means the image has no tonal range to stretch or threshold.
	ErrFlatImage = errors.New("image has no tonal range")
	// ErrNoColor means a channel transform was asked of a grayscale source.
	ErrNoColor = errors.New("image has no colour channels")
)

// Strategy is one preprocessing transform. Apply must not mutate src.
type Strategy struct {
	Name  string
	Apply func(src image.Image) (image.Image, error)
}

// DefaultStrategies returns the fixed attempt order. Earlier entries win.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: ApproachOriginal, Apply: Original},
		{Name: ApproachGrayscale, Apply: func(src image.Image) (image.Image, error) { return Grayscale(src), nil }},
		{Name: ApproachContrast, Apply: Contrast},
		{Name: ApproachRedChannel, Apply: RedChannel},
		{Name: ApproachBinarized, Apply: Binarize},
		{Name: ApproachInverted, Apply: BinarizeInverted},
	}
}

// Original passes the decoded image through untouched.
func Original(src image.Image) (image.Image, error) {
	if src == nil || src.Bounds().Empty() {
		return nil, errors.New("empty image")
	}
	return src, nil
}

// Grayscale converts src to 8-bit luma with its origin moved to (0,0).
func Grayscale(src image.Image) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// Contrast stretches luma so the 1st..99th percentile spans the full range.
func Contrast(src image.Image) (image.Image, error) {
	g := Grayscale(src)
	hist := histogram(g)
	total := len(g.Pix)
	lo := percentile(hist, total, 0.01)
	hi := percentile(hist, total, 0.99)
	if hi <= lo {
		return nil, ErrFlatImage
	}
	var lut [256]uint8
	span := float64(hi - lo)
	for v := 0; v < 256; v++ {
		switch {
		case v <= lo:
			lut[v] = 0
		case v >= hi:
			lut[v] = 255
		default:
			lut[v] = uint8(float64(v-lo)*255/span + 0.5)
		}
	}
	for i, v := range g.Pix {
		g.Pix[i] = lut[v]
	}
	return g, nil
}

// RedChannel isolates the red channel, which carries most of the contrast
// for dark or blue print on coloured stock.
func RedChannel(src image.Image) (image.Image, error) {
	switch src.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		return nil, ErrNoColor
	}
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := (y - b.Min.Y) * dst.Stride
		for x := b.Min.X; x < b.Max.X; x++ {
			r, _, _, _ := src.At(x, y).RGBA()
			dst.Pix[row+x-b.Min.X] = uint8(r >> 8)
		}
	}
	return dst, nil
}

// Binarize thresholds luma at the Otsu level: dark ink becomes 0, paper 255.
func Binarize(src image.Image) (image.Image, error) {
	return binarize(src, false)
}

// BinarizeInverted is Binarize with the result inverted, for light text on dark ground.
func BinarizeInverted(src image.Image) (image.Image, error) {
	return binarize(src, true)
}

func binarize(src image.Image, invert bool) (image.Image, error) {
	g := Grayscale(src)
	hist := histogram(g)
	t, ok := otsu(hist, len(g.Pix))
	if !ok {
		return nil, ErrFlatImage
	}
	on, off := uint8(255), uint8(0)
	if invert {
		on, off = off, on
	}
	for i, v := range g.Pix {
		if int(v) > t {
			g.Pix[i] = on
		} else {
			g.Pix[i] = off
		}
	}
	return g, nil
}

func histogram(g *image.Gray) [256]int {
	var h [256]int
	for _, v := range g.Pix {
		h[v]++
	}
	return h
}

func percentile(hist [256]int, total int, p float64) int {
	target := int(float64(total) * p)
	acc := 0
	for v, n := range hist {
		acc += n
		if acc > target {
			return v
		}
	}
	return 255
}

// otsu returns the threshold maximizing between-class variance.
func otsu(hist [256]int, total int) (int, bool) {
	if total == 0 {
		return 0, false
	}
	var sum float64
	for v, n := range hist {
		sum += float64(v * n)
	}
	var sumB, best float64
	wB, threshold := 0, -1
	for v := 0; v < 256; v++ {
		wB += hist[v]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(v * hist[v])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = v
		}
	}
	return threshold, threshold >= 0
}
