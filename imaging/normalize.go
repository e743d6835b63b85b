// Package imaging downscales uploaded images to a bounded size before they are
// attached to a model request.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Default bounds used by the chat widget.
const (
	DefaultMaxWidth  = 300
	DefaultMaxHeight = 300
)

// MaxSourcePixels caps the decoded size of an input image. Compressed
// formats can declare huge dimensions in a few kilobytes.
const MaxSourcePixels = 40_000_000

var (
	// ErrEmpty is returned for zero-length input.
	ErrEmpty = errors.New("imaging: empty image")
	// ErrUnsupportedFormat is returned when the bytes are not a supported image type.
	ErrUnsupportedFormat = errors.New("imaging: unsupported image format")
)

var supportedMIMEs = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Bounds is the maximum size of a normalized image.
type Bounds struct {
	MaxWidth  int
	MaxHeight int
}

// DefaultBounds returns the widget's 300x300 bound.
func DefaultBounds() Bounds {
	return Bounds{MaxWidth: DefaultMaxWidth, MaxHeight: DefaultMaxHeight}
}

// Image is a normalized image ready to attach to a request.
type Image struct {
	Data      []byte
	MediaType string
	Width     int
	Height    int
}

// Fit returns the largest size no bigger than the bounds that keeps the
// aspect ratio of w x h. Images already inside the bounds are returned as is.
func Fit(w, h int, b Bounds) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	scale := 1.0
	if b.MaxWidth > 0 && w > b.MaxWidth {
		scale = math.Min(scale, float64(b.MaxWidth)/float64(w))
	}
	if b.MaxHeight > 0 && h > b.MaxHeight {
		scale = math.Min(scale, float64(b.MaxHeight)/float64(h))
	}
	if scale == 1.0 {
		return w, h
	}

	nw := clamp(int(math.Round(float64(w)*scale)), b.MaxWidth)
	nh := clamp(int(math.Round(float64(h)*scale)), b.MaxHeight)
	return nw, nh
}

func clamp(v, limit int) int {
	if v < 1 {
		return 1
	}
	if limit > 0 && v > limit {
		return limit
	}
	return v
}

// Normalize decodes data, downscales it to fit b and re-encodes it.
// JPEG stays JPEG; every other format is encoded as PNG after resizing.
// Images already within the bounds are returned byte-for-byte.
func Normalize(data []byte, b Bounds) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	mediaType := mimetype.Detect(data).String()
	if !supportedMIMEs[mediaType] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mediaType)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > MaxSourcePixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrUnsupportedFormat, cfg.Width, cfg.Height, MaxSourcePixels)
	}

	w, h := Fit(cfg.Width, cfg.Height, b)
	if w == cfg.Width && h == cfg.Height {
		return &Image{Data: data, MediaType: mediaType, Width: w, Height: h}, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	outType := mediaType
	switch mediaType {
	case "image/jpeg":
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90})
	default:
		outType = "image/png"
		err = png.Encode(&buf, dst)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", outType, err)
	}

	return &Image{Data: buf.Bytes(), MediaType: outType, Width: w, Height: h}, nil
}
