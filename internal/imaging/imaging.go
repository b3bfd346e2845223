// Package imaging shrinks support screenshots before they are uploaded.
package imaging

import (
	"bytes"
	"image"
	"image/jpeg"
	"net/http"

	// Decoders for the formats users attach.
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Defaults for support screenshots.
const (
	DefaultMaxSide   = 1024
	DefaultQuality   = 60
	DefaultMaxPixels = 40_000_000
)

// Options controls Compress.
type Options struct {
	// MaxSide caps the longest side in pixels.
	MaxSide int
	// Quality is the JPEG quality, 1 to 100.
	Quality int
	// MaxPixels is the largest declared width×height that is decoded.
	// Bigger images are passed through untouched.
	MaxPixels int64
}

// DefaultOptions returns the screenshot settings.
func DefaultOptions() Options {
	return Options{MaxSide: DefaultMaxSide, Quality: DefaultQuality, MaxPixels: DefaultMaxPixels}
}

// Result is the output of Compress.
type Result struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
	// Compressed is false when the original bytes were returned.
	Compressed bool
}

// Compress scales the image so its longest side is at most opts.MaxSide,
// preserving the aspect ratio and never upscaling, and re-encodes it as JPEG.
// Any decode or encode failure returns the original bytes unchanged, as does
// a header declaring more than opts.MaxPixels pixels.
func Compress(data []byte, opts Options) Result {
	if opts.MaxSide <= 0 {
		opts.MaxSide = DefaultMaxSide
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultQuality
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}

	original := Result{Data: data, ContentType: http.DetectContentType(data)}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return original
	}
	if int64(cfg.Width)*int64(cfg.Height) > opts.MaxPixels {
		original.Width, original.Height = cfg.Width, cfg.Height
		return original
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return original
	}
	bounds := src.Bounds()
	original.Width, original.Height = bounds.Dx(), bounds.Dy()

	w, h := FitWithin(bounds.Dx(), bounds.Dy(), opts.MaxSide)
	if w <= 0 || h <= 0 {
		return original
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// JPEG has no alpha; flatten onto white.
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return original
	}

	return Result{
		Data:        buf.Bytes(),
		ContentType: "image/jpeg",
		Width:       w,
		Height:      h,
		Compressed:  true,
	}
}

// FitWithin returns the size of a w×h image scaled down so neither side
// exceeds maxSide. Smaller images keep their size.
func FitWithin(w, h, maxSide int) (int, int) {
	if w <= maxSide && h <= maxSide {
		return w, h
	}
	if w >= h {
		nh := h * maxSide / w
		if nh < 1 {
			nh = 1
		}
		return maxSide, nh
	}
	nw := w * maxSide / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxSide
}

// IsImage reports whether data sniffs as an image type.
func IsImage(data []byte) bool {
	ct := http.DetectContentType(data)
	return len(ct) > 6 && ct[:6] == "image/"
}
