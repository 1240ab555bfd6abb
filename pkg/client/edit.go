package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Sternrassler/photoroom-client/pkg/batch"
	"github.com/Sternrassler/photoroom-client/pkg/cache"
	"github.com/Sternrassler/photoroom-client/pkg/validation"
)

// EditRequest is a /v2/edit call. Exactly one of Image and ImageURL is set.
// A file or byte image is uploaded with POST; an ImageURL is sent with GET.
type EditRequest struct {
	Image    batch.Input
	ImageURL string

	// Optional uploads, POST only.
	BackgroundImage         *batch.Input
	BackgroundGuidanceImage *batch.Input

	// Params overlay DefaultEditParams; an empty value drops a default.
	Params EditParams
}

func (r EditRequest) hasImage() bool {
	return r.Image.IsFile() || len(r.Image.Data) > 0
}

// Validate checks the request shape.
func (r EditRequest) Validate() error {
	switch {
	case !r.hasImage() && r.ImageURL == "":
		return fmt.Errorf("%w: either an image or an image URL must be provided", ErrInvalidParameter)
	case r.hasImage() && r.ImageURL != "":
		return fmt.Errorf("%w: cannot provide both an image and an image URL", ErrInvalidParameter)
	case r.ImageURL != "" && (r.BackgroundImage != nil || r.BackgroundGuidanceImage != nil):
		return fmt.Errorf("%w: background uploads require an image file", ErrInvalidParameter)
	}
	return nil
}

// EditImage applies AI edits (backgrounds, shadows, relighting, upscaling...)
// using /v2/edit.
func (c *Client) EditImage(ctx context.Context, req EditRequest) (*ImageResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	params := req.Params.Merge(DefaultEditParams())

	if req.ImageURL != "" {
		return c.editByURL(ctx, req.ImageURL, params)
	}
	return c.editUpload(ctx, req, params)
}

func (c *Client) editByURL(ctx context.Context, imageURL string, params EditParams) (*ImageResponse, error) {
	values := params.Values()
	values.Set(ParamName("image_url"), imageURL)

	key := cache.Key{
		Endpoint:    PathEdit,
		ImageDigest: cache.URLDigest(imageURL),
		Params:      params.Values(),
	}
	if cached := c.cachedImage(ctx, key); cached != nil {
		return cached, nil
	}

	raw, err := c.send(ctx, PathEdit, requestSpec{
		method: http.MethodGet,
		url:    c.config.ImageAPIBaseURL + PathEdit + "?" + values.Encode(),
	})
	if err != nil {
		return nil, err
	}

	resp := newImageResponse(raw.body, raw.header)
	c.storeImage(ctx, key, resp)
	return resp, nil
}

func (c *Client) editUpload(ctx context.Context, req EditRequest, params EditParams) (*ImageResponse, error) {
	data, filename, err := c.loadImage(req.Image, "image.jpg")
	if err != nil {
		return nil, err
	}

	if mode, ok := params.Get("upscale_mode"); ok && c.config.ValidateImages {
		if err := validation.ValidateUpscale(data, mode); err != nil {
			return nil, err
		}
	}

	files := []formFile{{field: ParamName("image_file"), name: filename, data: data}}
	digests := []string{cache.Digest(data)}

	extras := []struct {
		param    string
		input    *batch.Input
		fallback string
	}{
		{"background_image_file", req.BackgroundImage, "background.jpg"},
		{"background_guidance_image_file", req.BackgroundGuidanceImage, "guidance.jpg"},
	}
	for _, extra := range extras {
		if extra.input == nil {
			continue
		}
		extraData, extraName, err := c.loadImage(*extra.input, extra.fallback)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", extra.param, err)
		}
		files = append(files, formFile{field: ParamName(extra.param), name: extraName, data: extraData})
		digests = append(digests, cache.Digest(extraData))
	}

	values := params.Values()

	digest := digests[0]
	if len(digests) > 1 {
		digest = cache.Digest([]byte(strings.Join(digests, ":")))
	}
	key := cache.Key{
		Endpoint:    PathEdit,
		ImageDigest: digest,
		Params:      values,
	}
	if cached := c.cachedImage(ctx, key); cached != nil {
		return cached, nil
	}

	body, contentType, err := encodeMultipart(values, files)
	if err != nil {
		return nil, err
	}

	raw, err := c.send(ctx, PathEdit, requestSpec{
		method:      http.MethodPost,
		url:         c.config.ImageAPIBaseURL + PathEdit,
		contentType: contentType,
		body:        body,
	})
	if err != nil {
		return nil, err
	}

	resp := newImageResponse(raw.body, raw.header)
	c.storeImage(ctx, key, resp)

	if attrs := resp.UnsupportedAttributes(); len(attrs) > 0 {
		c.logger.Warn().Strs("attributes", attrs).Msg("API ignored unsupported attributes")
	}
	c.logger.Info().
		Str("file", filename).
		Int("bytes", resp.Size()).
		Msg("Image edited")

	return resp, nil
}
