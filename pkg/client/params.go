package client

import (
	"fmt"
	"net/url"
	"strconv"
)

// paramNames maps snake_case edit parameters to their /v2/edit names.
var paramNames = map[string]string{
	// Background
	"background_blur_mode":           "background.blur.mode",
	"background_blur_radius":         "background.blur.radius",
	"background_color":               "background.color",
	"background_expand_prompt":       "background.expandPrompt",
	"background_guidance_image_file": "background.guidance.imageFile",
	"background_guidance_image_url":  "background.guidance.imageUrl",
	"background_guidance_scale":      "background.guidance.scale",
	"background_image_url":           "background.imageUrl",
	"background_image_file":          "background.imageFile",
	"background_negative_prompt":     "background.negativePrompt",
	"background_prompt":              "background.prompt",
	"background_scaling":             "background.scaling",
	"background_seed":                "background.seed",

	// Beautify, expand, export
	"beautify_mode": "beautify.mode",
	"beautify_seed": "beautify.seed",
	"expand_mode":   "expand.mode",
	"expand_seed":   "expand.seed",
	"export_dpi":    "export.dpi",
	"export_format": "export.format",

	// Image from prompt
	"image_from_prompt_prompt": "imageFromPrompt.prompt",
	"image_from_prompt_seed":   "imageFromPrompt.seed",
	"image_from_prompt_size":   "imageFromPrompt.size",

	// AI modes
	"lighting_mode":                "lighting.mode",
	"segmentation_mode":            "segmentation.mode",
	"segmentation_negative_prompt": "segmentation.negativePrompt",
	"segmentation_prompt":          "segmentation.prompt",
	"shadow_mode":                  "shadow.mode",
	"text_removal_mode":            "textRemoval.mode",
	"uncrop_mode":                  "uncrop.mode",
	"uncrop_seed":                  "uncrop.seed",
	"upscale_mode":                 "upscale.mode",

	// Layout
	"image_url":                   "imageUrl",
	"image_file":                  "imageFile",
	"output_size":                 "outputSize",
	"remove_background":           "removeBackground",
	"horizontal_alignment":        "horizontalAlignment",
	"vertical_alignment":          "verticalAlignment",
	"reference_box":               "referenceBox",
	"template_id":                 "templateId",
	"preserve_metadata":           "preserveMetadata",
	"keep_existing_alpha_channel": "keepExistingAlphaChannel",

	"ignore_padding_and_snap_on_cropped_sides": "ignorePaddingAndSnapOnCroppedSides",

	// Margins and padding
	"margin_top":     "marginTop",
	"margin_bottom":  "marginBottom",
	"margin_left":    "marginLeft",
	"margin_right":   "marginRight",
	"padding_top":    "paddingTop",
	"padding_bottom": "paddingBottom",
	"padding_left":   "paddingLeft",
	"padding_right":  "paddingRight",
	"max_width":      "maxWidth",
	"max_height":     "maxHeight",
}

// ParamName converts a snake_case edit parameter to its API name.
// Unknown names, including names already in API form, pass through.
func ParamName(name string) string {
	if api, ok := paramNames[name]; ok {
		return api
	}
	return name
}

// EditParams holds /v2/edit parameters keyed by snake_case or API name.
type EditParams map[string]string

// DefaultEditParams removes the background and exports PNG.
func DefaultEditParams() EditParams {
	return EditParams{
		"remove_background": "true",
		"export_format":     "png",
	}
}

// Set stores value formatted for the API and returns p for chaining.
func (p EditParams) Set(name string, value any) EditParams {
	switch v := value.(type) {
	case string:
		p[name] = v
	case bool:
		p[name] = strconv.FormatBool(v)
	case int:
		p[name] = strconv.Itoa(v)
	case int64:
		p[name] = strconv.FormatInt(v, 10)
	case float64:
		p[name] = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		p[name] = fmt.Sprint(v)
	}
	return p
}

// Get returns the value stored under name or its API name.
func (p EditParams) Get(name string) (string, bool) {
	if v, ok := p[name]; ok {
		return v, true
	}
	api := ParamName(name)
	for k, v := range p {
		if ParamName(k) == api {
			return v, true
		}
	}
	return "", false
}

// Merge returns defaults overlaid with p. An empty value in p removes the key.
func (p EditParams) Merge(defaults EditParams) EditParams {
	out := make(EditParams, len(defaults)+len(p))
	for k, v := range defaults {
		out[ParamName(k)] = v
	}
	for k, v := range p {
		api := ParamName(k)
		if v == "" {
			delete(out, api)
			continue
		}
		out[api] = v
	}
	return out
}

// Values converts p to API-named form values.
func (p EditParams) Values() url.Values {
	v := url.Values{}
	for name, value := range p {
		v.Set(ParamName(name), value)
	}
	return v
}
