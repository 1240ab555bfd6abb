package validation

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

// JPEGQuality is used whenever an image has to be re-encoded as JPEG.
const JPEGQuality = 90

// minResizeScale bounds the file-size search.
const minResizeScale = 0.1

// Convert decodes data and re-encodes it as PNG.
// Formats without a Go decoder (heic, ico) fail.
func Convert(data []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, invalid("cannot decode image for conversion: %v", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode %s as png: %w", format, err)
	}
	return buf.Bytes(), nil
}

// Resize scales data so that neither side exceeds maxDim and the encoded
// result fits in maxBytes. JPEG stays JPEG; other formats become PNG and fall
// back to JPEG when PNG cannot get under maxBytes.
func Resize(data []byte, maxDim, maxBytes int) ([]byte, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, invalid("cannot decode image for resizing: %v", err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	scale := 1.0
	if longest := max(w, h); longest > maxDim {
		scale = float64(maxDim) / float64(longest)
	}

	encode := encodePNG
	if format == "jpeg" {
		encode = encodeJPEG
	}

	out, err := encode(scaleImage(src, scale))
	if err != nil {
		return nil, err
	}
	if len(out) <= maxBytes {
		logResize(w, h, scale, len(data), len(out))
		return out, nil
	}

	if format != "jpeg" {
		encode = encodeJPEG
		if out, err = encode(scaleImage(src, scale)); err != nil {
			return nil, err
		}
		if len(out) <= maxBytes {
			logResize(w, h, scale, len(data), len(out))
			return out, nil
		}
	}

	// Binary search the largest scale whose encoding fits.
	lo, hi := minResizeScale, scale
	var best []byte
	bestScale := 0.0
	for i := 0; i < 8; i++ {
		mid := (lo + hi) / 2
		candidate, err := encode(scaleImage(src, mid))
		if err != nil {
			return nil, err
		}
		if len(candidate) <= maxBytes {
			best, bestScale = candidate, mid
			lo = mid
		} else {
			hi = mid
		}
	}

	if best == nil {
		candidate, err := encode(scaleImage(src, minResizeScale))
		if err != nil {
			return nil, err
		}
		if len(candidate) > maxBytes {
			return nil, invalid("cannot shrink image below %d bytes", maxBytes)
		}
		best, bestScale = candidate, minResizeScale
	}

	logResize(w, h, bestScale, len(data), len(best))
	return best, nil
}

func scaleImage(src image.Image, scale float64) image.Image {
	if scale >= 1 {
		return src
	}
	b := src.Bounds()
	w := max(1, int(float64(b.Dx())*scale))
	h := max(1, int(float64(b.Dy())*scale))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// encodeJPEG flattens transparency onto white before encoding.
func encodeJPEG(img image.Image) ([]byte, error) {
	b := img.Bounds()
	flat := image.NewRGBA(b)
	draw.Draw(flat, b, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(flat, b, img, b.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func logResize(w, h int, scale float64, before, after int) {
	log.Info().
		Int("width", w).
		Int("height", h).
		Float64("scale", scale).
		Int("bytes_before", before).
		Int("bytes_after", after).
		Msg("Resized image")
}
