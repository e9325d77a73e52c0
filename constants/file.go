package constants

import "strings"

// MaxUploadBytes is the largest accepted image payload (10 MB).
const MaxUploadBytes int64 = 10 << 20

// ImageFormat is the decoder name reported by image.Decode for accepted formats.
type ImageFormat string

const (
	FormatJPEG ImageFormat = "jpeg"
	FormatPNG  ImageFormat = "png"
	FormatGIF  ImageFormat = "gif"
	FormatWEBP ImageFormat = "webp"
	FormatBMP  ImageFormat = "bmp"
	FormatTIFF ImageFormat = "tiff"
)

// ContentTypes maps sniffed MIME types to the accepted formats.
var ContentTypes = map[string]ImageFormat{
	"image/jpeg": FormatJPEG,
	"image/png":  FormatPNG,
	"image/gif":  FormatGIF,
	"image/webp": FormatWEBP,
	"image/bmp":  FormatBMP,
	"image/tiff": FormatTIFF,
}

// AllowedExtensions holds the default allowed file extensions for directory ingestion.
var AllowedExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"gif":  {},
	"webp": {},
	"bmp":  {},
	"tif":  {},
	"tiff": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedExt checks a (possibly dotted) extension against AllowedExtensions.
func IsAllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}
