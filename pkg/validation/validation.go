// Package validation checks images against PhotoRoom API limits before upload
// and optionally resizes or converts them so they fit.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// API limits.
const (
	// MaxFileSize is the largest accepted upload in bytes.
	MaxFileSize = 30 * 1024 * 1024

	// MaxDimension is the largest accepted width or height in pixels.
	MaxDimension = 5000

	// RecommendedMaxMegapixels is a soft limit; larger images only log a warning.
	RecommendedMaxMegapixels = 25.0

	// UpscaleFastMaxDimension bounds inputs for the ai.fast upscale mode.
	UpscaleFastMaxDimension = 1000

	// UpscaleSlowMaxDimension bounds inputs for the ai.slow upscale mode.
	UpscaleSlowMaxDimension = 512
)

var (
	// SupportedFormats are accepted by the API as-is.
	SupportedFormats = []string{"jpeg", "jpg", "png", "webp"}

	// ConvertibleFormats can be sent after conversion.
	ConvertibleFormats = []string{"heic", "heif", "tiff", "tif", "bmp", "gif", "ico"}
)

// ErrInvalidImage is matched by *Error.
var ErrInvalidImage = errors.New("invalid image")

// Error describes why an image was rejected.
type Error struct {
	Reason string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return "invalid image: " + e.Reason
}

// Is reports whether target is ErrInvalidImage.
func (e *Error) Is(target error) bool {
	return target == ErrInvalidImage
}

func invalid(format string, args ...any) error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

// Extension returns the lower-case extension of path without the dot.
func Extension(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// IsSupported reports whether format is accepted without conversion.
func IsSupported(format string) bool {
	return slices.Contains(SupportedFormats, strings.ToLower(format))
}

// IsConvertible reports whether format can be converted to a supported one.
func IsConvertible(format string) bool {
	return slices.Contains(ConvertibleFormats, strings.ToLower(format))
}

// ValidateSize rejects empty data and data larger than maxBytes.
func ValidateSize(data []byte, maxBytes int) error {
	if len(data) == 0 {
		return invalid("image data is empty")
	}
	if len(data) > maxBytes {
		return invalid("image is %.1fMB, maximum is %.1fMB",
			float64(len(data))/(1024*1024), float64(maxBytes)/(1024*1024))
	}
	return nil
}

// ValidateFormat checks the extension of path and returns it.
func ValidateFormat(path string) (string, error) {
	ext := Extension(path)
	if ext == "" {
		return "", invalid("%s has no file extension", filepath.Base(path))
	}
	if IsSupported(ext) {
		return ext, nil
	}
	if IsConvertible(ext) {
		return ext, invalid("format %q must be converted to one of %s", ext, strings.Join(SupportedFormats, ", "))
	}
	return ext, invalid("unsupported format %q (supported: %s)", ext, strings.Join(SupportedFormats, ", "))
}

// Dimensions decodes the image header and returns width, height and format.
func Dimensions(data []byte) (int, int, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, "", fmt.Errorf("decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, format, nil
}

// ValidateResolution rejects images whose widest side exceeds maxDim.
// Images whose header cannot be decoded are left to the API.
func ValidateResolution(data []byte, maxDim int) error {
	w, h, _, err := Dimensions(data)
	if err != nil {
		log.Debug().Err(err).Msg("Skipping resolution check")
		return nil
	}
	if w > maxDim || h > maxDim {
		return invalid("resolution %dx%d exceeds maximum %dpx", w, h, maxDim)
	}
	return nil
}

// Megapixels returns the pixel count in millions, 0 if undecodable.
func Megapixels(data []byte) float64 {
	w, h, _, err := Dimensions(data)
	if err != nil {
		return 0
	}
	return float64(w) * float64(h) / 1_000_000
}

// ValidateUpscale checks the input dimension bound for an upscale mode
// ("ai.fast" or "ai.slow"). Other modes are not checked.
func ValidateUpscale(data []byte, mode string) error {
	var limit int
	switch mode {
	case "ai.fast":
		limit = UpscaleFastMaxDimension
	case "ai.slow":
		limit = UpscaleSlowMaxDimension
	default:
		return nil
	}

	w, h, _, err := Dimensions(data)
	if err != nil {
		return invalid("cannot read dimensions for upscale: %v", err)
	}
	if w > limit || h > limit {
		return invalid("upscale mode %s accepts at most %dx%d, got %dx%d", mode, limit, limit, w, h)
	}
	return nil
}

// Options controls Prepare.
type Options struct {
	// AutoResize shrinks oversized images instead of rejecting them.
	AutoResize bool

	// AutoConvert converts convertible formats to PNG instead of rejecting them.
	AutoConvert bool

	// MaxDimension overrides MaxDimension when > 0.
	MaxDimension int

	// MaxFileSize overrides MaxFileSize when > 0.
	MaxFileSize int
}

// DefaultOptions enables neither resizing nor conversion.
func DefaultOptions() Options {
	return Options{
		MaxDimension: MaxDimension,
		MaxFileSize:  MaxFileSize,
	}
}

// Prepare validates data and, when enabled, converts and resizes it.
// path is used for the format check and may be empty for raw bytes.
func Prepare(data []byte, path string, opts Options) ([]byte, error) {
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = MaxDimension
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = MaxFileSize
	}
	if len(data) == 0 {
		return nil, invalid("image data is empty")
	}

	// Step 1: Format
	format := Extension(path)
	if format == "" {
		if _, _, detected, err := Dimensions(data); err == nil {
			format = detected
		}
	}
	if format != "" && !IsSupported(format) {
		if !IsConvertible(format) {
			return nil, invalid("unsupported format %q (supported: %s)", format, strings.Join(SupportedFormats, ", "))
		}
		if !opts.AutoConvert {
			return nil, invalid("format %q must be converted to one of %s", format, strings.Join(SupportedFormats, ", "))
		}
		converted, err := Convert(data)
		if err != nil {
			return nil, err
		}
		log.Info().Str("from", format).Int("bytes", len(converted)).Msg("Converted image to PNG")
		data = converted
	}

	// Step 2: Resolution
	if err := ValidateResolution(data, opts.MaxDimension); err != nil {
		if !opts.AutoResize {
			return nil, err
		}
		resized, err := Resize(data, opts.MaxDimension, opts.MaxFileSize)
		if err != nil {
			return nil, err
		}
		data = resized
	}

	// Step 3: File size
	if err := ValidateSize(data, opts.MaxFileSize); err != nil {
		if !opts.AutoResize {
			return nil, err
		}
		resized, err := Resize(data, opts.MaxDimension, opts.MaxFileSize)
		if err != nil {
			return nil, err
		}
		data = resized
	}

	// Step 4: Soft megapixel limit
	if mp := Megapixels(data); mp > RecommendedMaxMegapixels {
		log.Warn().
			Float64("megapixels", mp).
			Float64("recommended_max", RecommendedMaxMegapixels).
			Msg("Image exceeds recommended resolution, processing may be slow")
	}

	return data, nil
}

// LoadFile reads path and, if validate is set, runs Prepare on it.
func LoadFile(path string, validate bool, opts Options) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat image: %w", err)
	}
	if info.IsDir() {
		return nil, invalid("%s is a directory", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if !validate {
		return data, nil
	}
	return Prepare(data, path, opts)
}
