package imaging

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"
	"strings"
	"testing"
)

func solid(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(w, h)); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, solid(w, h), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFit(t *testing.T) {
	b := DefaultBounds()
	tests := []struct {
		name         string
		w, h         int
		wantW, wantH int
	}{
		{"inside bounds", 200, 100, 200, 100},
		{"exactly at bound", 300, 300, 300, 300},
		{"wide", 600, 300, 300, 150},
		{"tall", 400, 800, 150, 300},
		{"square", 1200, 1200, 300, 300},
		{"wide but short", 900, 120, 300, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := Fit(tt.w, tt.h, b)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("Fit(%d, %d) = %dx%d, want %dx%d", tt.w, tt.h, w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestFitNonSquareBounds(t *testing.T) {
	// Width fits, height does not: the height bound still applies.
	w, h := Fit(250, 400, Bounds{MaxWidth: 300, MaxHeight: 200})
	if w != 125 || h != 200 {
		t.Errorf("got %dx%d, want 125x200", w, h)
	}
}

func TestFitNeverExceedsBoundsAndKeepsAspect(t *testing.T) {
	b := Bounds{MaxWidth: 300, MaxHeight: 200}
	for w := 1; w <= 2000; w += 37 {
		for h := 1; h <= 2000; h += 41 {
			nw, nh := Fit(w, h, b)
			if w > b.MaxWidth || h > b.MaxHeight {
				if nw > b.MaxWidth || nh > b.MaxHeight {
					t.Fatalf("Fit(%d, %d) = %dx%d exceeds %dx%d", w, h, nw, nh, b.MaxWidth, b.MaxHeight)
				}
			} else if nw != w || nh != h {
				t.Fatalf("Fit(%d, %d) = %dx%d, want unchanged", w, h, nw, nh)
			}
			if nw < 2 || nh < 2 {
				continue // rounding dominates at one pixel
			}
			want := float64(w) / float64(h)
			got := float64(nw) / float64(nh)
			// One pixel of rounding on either side.
			tol := want * (1.0/float64(nw) + 1.0/float64(nh))
			if math.Abs(got-want) > tol {
				t.Fatalf("Fit(%d, %d) = %dx%d: ratio %.4f, want %.4f±%.4f", w, h, nw, nh, got, want, tol)
			}
		}
	}
}

func TestNormalizeDownscalesPNG(t *testing.T) {
	img, err := Normalize(encodePNG(t, 600, 400), DefaultBounds())
	if err != nil {
		t.Fatal(err)
	}
	if img.Width != 300 || img.Height != 200 {
		t.Errorf("size = %dx%d, want 300x200", img.Width, img.Height)
	}
	if img.MediaType != "image/png" {
		t.Errorf("MediaType = %q", img.MediaType)
	}
	decoded, err := png.Decode(bytes.NewReader(img.Data))
	if err != nil {
		t.Fatal(err)
	}
	if b := decoded.Bounds(); b.Dx() != 300 || b.Dy() != 200 {
		t.Errorf("decoded bounds = %v", b)
	}
}

func TestNormalizeKeepsJPEG(t *testing.T) {
	img, err := Normalize(encodeJPEG(t, 320, 640), DefaultBounds())
	if err != nil {
		t.Fatal(err)
	}
	if img.MediaType != "image/jpeg" {
		t.Errorf("MediaType = %q", img.MediaType)
	}
	if img.Width != 150 || img.Height != 300 {
		t.Errorf("size = %dx%d, want 150x300", img.Width, img.Height)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 150 || cfg.Height != 300 {
		t.Errorf("encoded size = %dx%d", cfg.Width, cfg.Height)
	}
}

func TestNormalizeSmallImageUntouched(t *testing.T) {
	data := encodeJPEG(t, 120, 80)
	img, err := Normalize(data, DefaultBounds())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(img.Data, data) {
		t.Error("image inside bounds should be returned unchanged")
	}
	if img.Width != 120 || img.Height != 80 {
		t.Errorf("size = %dx%d", img.Width, img.Height)
	}
}

func TestNormalizeGIFBecomesPNG(t *testing.T) {
	pal := image.NewPaletted(image.Rect(0, 0, 500, 500), []color.Color{color.White, color.Black})
	var buf bytes.Buffer
	if err := gif.Encode(&buf, pal, nil); err != nil {
		t.Fatal(err)
	}
	img, err := Normalize(buf.Bytes(), DefaultBounds())
	if err != nil {
		t.Fatal(err)
	}
	if img.MediaType != "image/png" || img.Width != 300 || img.Height != 300 {
		t.Errorf("got %s %dx%d", img.MediaType, img.Width, img.Height)
	}
}

func TestNormalizeRejectsInput(t *testing.T) {
	if _, err := Normalize(nil, DefaultBounds()); !errors.Is(err, ErrEmpty) {
		t.Errorf("nil input: err = %v, want ErrEmpty", err)
	}
	if _, err := Normalize([]byte("just some text, not an image"), DefaultBounds()); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("text input: err = %v, want ErrUnsupportedFormat", err)
	}
	// Valid PNG signature, truncated body.
	truncated := encodePNG(t, 10, 10)[:20]
	if _, err := Normalize(truncated, DefaultBounds()); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("truncated input: err = %v, want ErrUnsupportedFormat", err)
	}
}

// pngHeader returns a PNG signature and IHDR chunk declaring a w x h grayscale
// image, with no pixel data.
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth; color type, compression, filter, interlace stay 0

	chunk := append([]byte("IHDR"), ihdr...)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestNormalizeRejectsOversizedDimensions(t *testing.T) {
	data := pngHeader(12000, 12000)
	if len(data) > 64 {
		t.Fatalf("header is %d bytes", len(data))
	}
	_, err := Normalize(data, DefaultBounds())
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
	if !strings.Contains(err.Error(), "12000x12000") {
		t.Errorf("err = %v", err)
	}
}

func TestNormalizeDimensionLimitAllowsLargePhotos(t *testing.T) {
	// 6000x4000 is within the limit; decoding fails later only because
	// the header carries no pixel data.
	_, err := Normalize(pngHeader(6000, 4000), DefaultBounds())
	if err == nil || strings.Contains(err.Error(), "exceeds") {
		t.Errorf("err = %v, want a decode error rather than the size limit", err)
	}
}
