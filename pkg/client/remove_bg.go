package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/Sternrassler/photoroom-client/pkg/batch"
	"github.com/Sternrassler/photoroom-client/pkg/cache"
)

var (
	segmentFormats  = []string{"png", "jpg", "webp"}
	segmentChannels = []string{"rgba", "alpha"}
	segmentSizes    = []string{"preview", "medium", "hd", "full"}
)

// RemoveBackgroundOptions are the /v1/segment form fields.
type RemoveBackgroundOptions struct {
	// Format is png, jpg or webp.
	Format string

	// Channels is rgba or alpha.
	Channels string

	// BgColor fills transparent areas, hex ("FF0000") or a color name.
	// Empty keeps the background transparent.
	BgColor string

	// Size is preview (0.25 MP), medium (1.5 MP), hd (4 MP) or full (36 MP).
	Size string

	// Crop trims the result to the cutout border.
	Crop bool

	// Despill removes green screen reflections.
	Despill bool
}

// DefaultRemoveBackgroundOptions returns PNG, rgba, full size.
func DefaultRemoveBackgroundOptions() RemoveBackgroundOptions {
	return RemoveBackgroundOptions{
		Format:   "png",
		Channels: "rgba",
		Size:     "full",
	}
}

// Validate checks the enumerated fields. Empty values are left to the API default.
func (o RemoveBackgroundOptions) Validate() error {
	checks := []struct {
		name    string
		value   string
		allowed []string
	}{
		{"format", o.Format, segmentFormats},
		{"channels", o.Channels, segmentChannels},
		{"size", o.Size, segmentSizes},
	}
	for _, c := range checks {
		if c.value != "" && !slices.Contains(c.allowed, c.value) {
			return fmt.Errorf("%w: %s %q, want one of %v", ErrInvalidParameter, c.name, c.value, c.allowed)
		}
	}
	return nil
}

// Params returns the form fields sent to /v1/segment.
func (o RemoveBackgroundOptions) Params() url.Values {
	v := url.Values{}
	if o.Format != "" {
		v.Set("format", o.Format)
	}
	if o.Channels != "" {
		v.Set("channels", o.Channels)
	}
	if o.BgColor != "" {
		v.Set("bg_color", o.BgColor)
	}
	if o.Size != "" {
		v.Set("size", o.Size)
	}
	v.Set("crop", strconv.FormatBool(o.Crop))
	v.Set("despill", strconv.FormatBool(o.Despill))
	return v
}

// RemoveBackground cuts out the subject of an image using /v1/segment.
func (c *Client) RemoveBackground(ctx context.Context, in batch.Input, opts RemoveBackgroundOptions) (*ImageResponse, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	data, filename, err := c.loadImage(in, "image.jpg")
	if err != nil {
		return nil, err
	}

	params := opts.Params()
	key := cache.Key{
		Endpoint:    PathSegment,
		ImageDigest: cache.Digest(data),
		Params:      params,
	}
	if cached := c.cachedImage(ctx, key); cached != nil {
		return cached, nil
	}

	body, contentType, err := encodeMultipart(params, []formFile{
		{field: "image_file", name: filename, data: data},
	})
	if err != nil {
		return nil, err
	}

	raw, err := c.send(ctx, PathSegment, requestSpec{
		method:      http.MethodPost,
		url:         c.config.SDKBaseURL + PathSegment,
		contentType: contentType,
		body:        body,
	})
	if err != nil {
		return nil, err
	}

	resp := newImageResponse(raw.body, raw.header)
	c.storeImage(ctx, key, resp)

	c.logger.Info().
		Str("file", filename).
		Int("bytes", resp.Size()).
		Msg("Background removed")

	return resp, nil
}
