package client

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Response headers copied into ImageResponse.Metadata.
const (
	HeaderBackgroundSeed        = "pr-ai-background-seed"
	HeaderTextsDetected         = "pr-texts-detected"
	HeaderUnsupportedAttributes = "pr-unsupported-attributes"
	HeaderEditFurtherURL        = "pr-edit-further-url"
	HeaderContentType           = "content-type"
)

var metadataHeaders = []string{
	HeaderBackgroundSeed,
	HeaderTextsDetected,
	HeaderUnsupportedAttributes,
	HeaderEditFurtherURL,
	HeaderContentType,
}

// ImageResponse is a processed image and the metadata headers it came with.
// It implements batch.Artifact.
type ImageResponse struct {
	Data     []byte
	Metadata map[string]string

	// Cached is set when the image was served from the result cache.
	Cached bool
}

func newImageResponse(data []byte, header http.Header) *ImageResponse {
	return &ImageResponse{
		Data:     data,
		Metadata: extractMetadata(header),
	}
}

func extractMetadata(header http.Header) map[string]string {
	metadata := make(map[string]string)
	for _, name := range metadataHeaders {
		if v := header.Get(name); v != "" {
			metadata[name] = v
		}
	}
	return metadata
}

// Size returns the image size in bytes.
func (r *ImageResponse) Size() int {
	return len(r.Data)
}

// Bytes returns the image data.
func (r *ImageResponse) Bytes() []byte {
	return r.Data
}

// ContentType returns the response content type, if known.
func (r *ImageResponse) ContentType() string {
	return r.Metadata[HeaderContentType]
}

// BackgroundSeed returns the seed used for an AI generated background.
func (r *ImageResponse) BackgroundSeed() (int64, bool) {
	return r.intHeader(HeaderBackgroundSeed)
}

// TextsDetected returns how many texts the API found in the image.
func (r *ImageResponse) TextsDetected() (int64, bool) {
	return r.intHeader(HeaderTextsDetected)
}

// EditFurtherURL returns the link to continue editing in the PhotoRoom app.
func (r *ImageResponse) EditFurtherURL() string {
	return r.Metadata[HeaderEditFurtherURL]
}

// UnsupportedAttributes lists request attributes the API ignored.
func (r *ImageResponse) UnsupportedAttributes() []string {
	raw := r.Metadata[HeaderUnsupportedAttributes]
	if raw == "" {
		return nil
	}
	var attrs []string
	for _, a := range strings.Split(raw, ",") {
		if a = strings.TrimSpace(a); a != "" {
			attrs = append(attrs, a)
		}
	}
	return attrs
}

func (r *ImageResponse) intHeader(name string) (int64, bool) {
	raw, ok := r.Metadata[name]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Persist writes the image to path, creating parent directories.
func (r *ImageResponse) Persist(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, r.Data, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	return nil
}

// String summarizes the response.
func (r *ImageResponse) String() string {
	keys := make([]string, 0, len(r.Metadata))
	for k := range r.Metadata {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return fmt.Sprintf("ImageResponse(size=%s, metadata=%v)", humanize.IBytes(uint64(len(r.Data))), keys)
}
