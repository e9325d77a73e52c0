// Package imaging validates uploaded images and derives the preprocessed
// candidates and thumbnails used by the submission pipeline.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/joseph-ayodele/photon-decode/constants"
)

var (
	// ErrFileTooLarge is returned for payloads over the byte or pixel limit.
	ErrFileTooLarge = errors.New("file too large")
	// ErrInvalidFileType is returned when the content is not an accepted image format.
	ErrInvalidFileType = errors.New("invalid file type")
	// ErrCorruptImage is returned when the content looks like an image but cannot be decoded.
	ErrCorruptImage = errors.New("corrupt image")
)

// ValidatedImage is a fully decoded upload.
type ValidatedImage struct {
	Image       image.Image
	Format      constants.ImageFormat
	ContentType string
	Width       int
	Height      int
	Size        int64
}

// ValidatorConfig bounds accepted payloads. Zero values take defaults.
type ValidatorConfig struct {
	MaxBytes  int64 // default constants.MaxUploadBytes
	MaxPixels int64 // default 40 MP
}

// Validator checks untrusted uploads before any processing.
type Validator struct {
	cfg    ValidatorConfig
	logger *slog.Logger
}

func NewValidator(cfg ValidatorConfig, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = constants.MaxUploadBytes
	}
	if cfg.MaxPixels <= 0 {
		cfg.MaxPixels = 40_000_000
	}
	return &Validator{cfg: cfg, logger: logger}
}

// MaxBytes returns the effective payload limit.
func (v *Validator) MaxBytes() int64 { return v.cfg.MaxBytes }

// Validate sniffs, bounds and decodes data. The declared content type is only logged.
func (v *Validator) Validate(data []byte, declaredContentType string) (*ValidatedImage, error) {
	size := int64(len(data))
	if size > v.cfg.MaxBytes {
		v.logger.Warn("upload rejected: too large", "size", size, "max_bytes", v.cfg.MaxBytes)
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, size, v.cfg.MaxBytes)
	}

	contentType, format, ok := sniff(data)
	if !ok {
		v.logger.Warn("upload rejected: not an accepted image",
			"sniffed", contentType, "declared", declaredContentType, "size", size)
		return nil, fmt.Errorf("%w: content is %s", ErrInvalidFileType, contentType)
	}
	if declared := strings.ToLower(strings.TrimSpace(declaredContentType)); declared != "" && !strings.HasPrefix(declared, contentType) {
		v.logger.Debug("declared content type differs from content", "declared", declaredContentType, "sniffed", contentType)
	}

	cfg, _, err := decodeConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorruptImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty dimensions %dx%d", ErrCorruptImage, cfg.Width, cfg.Height)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > v.cfg.MaxPixels {
		v.logger.Warn("upload rejected: too many pixels", "width", cfg.Width, "height", cfg.Height, "max_pixels", v.cfg.MaxPixels)
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrFileTooLarge, cfg.Width, cfg.Height, v.cfg.MaxPixels)
	}

	img, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptImage, err)
	}
	b := img.Bounds()
	return &ValidatedImage{
		Image:       img,
		Format:      format,
		ContentType: contentType,
		Width:       b.Dx(),
		Height:      b.Dy(),
		Size:        size,
	}, nil
}

// sniff identifies the format from magic bytes only.
func sniff(data []byte) (string, constants.ImageFormat, bool) {
	if isTIFF(data) {
		return "image/tiff", constants.FormatTIFF, true
	}
	ct := http.DetectContentType(data)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	format, ok := constants.ContentTypes[ct]
	return ct, format, ok
}

func isTIFF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("II*\x00")) || bytes.HasPrefix(data, []byte("MM\x00*"))
}

// decoders must not take the process down on hostile input.
func decodeConfig(data []byte) (cfg image.Config, format string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decoder panic: %v", r)
		}
	}()
	return image.DecodeConfig(bytes.NewReader(data))
}

func decode(data []byte) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("decoder panic: %v", r)
		}
	}()
	img, _, err = image.Decode(bytes.NewReader(data))
	return img, err
}
