package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// ThumbnailContentType is the MIME type of every generated preview.
const ThumbnailContentType = "image/jpeg"

// Thumbnailer renders bounded JPEG previews.
type Thumbnailer struct {
	maxEdge int
	quality int
}

// NewThumbnailer returns a Thumbnailer fitting previews inside maxEdge x maxEdge (default 256).
func NewThumbnailer(maxEdge int) *Thumbnailer {
	if maxEdge <= 0 {
		maxEdge = 256
	}
	return &Thumbnailer{maxEdge: maxEdge, quality: 80}
}

// Generate scales src to fit the bound; images already inside it are not upscaled.
func (t *Thumbnailer) Generate(src image.Image) ([]byte, error) {
	if src == nil {
		return nil, errors.New("thumbnail: nil image")
	}
	b := src.Bounds()
	if b.Empty() {
		return nil, errors.New("thumbnail: empty image")
	}
	w, h := fit(b.Dx(), b.Dy(), t.maxEdge)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: t.quality}); err != nil {
		return nil, fmt.Errorf("thumbnail: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func fit(w, h, maxEdge int) (int, int) {
	if w <= maxEdge && h <= maxEdge {
		return w, h
	}
	if w >= h {
		nh := h * maxEdge / w
		if nh < 1 {
			nh = 1
		}
		return maxEdge, nh
	}
	nw := w * maxEdge / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxEdge
}
