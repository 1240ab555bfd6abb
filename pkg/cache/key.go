package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every cache key.
const KeyPrefix = "photoroom"

// Key identifies a cached result.
type Key struct {
	// Endpoint is the API path (e.g. "/v1/segment")
	Endpoint string

	// ImageDigest identifies the source image, see Digest and URLDigest
	ImageDigest string

	// Params are the request parameters that influence the output
	Params url.Values
}

// Digest returns the hex SHA-256 of image bytes.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// URLDigest returns a digest for an image referenced by URL.
func URLDigest(imageURL string) string {
	return "url-" + Digest([]byte(imageURL))
}

// String generates a deterministic cache key string.
// Format: photoroom:endpoint:digest:param1=val1:param2=val2
//
// Example:
//
//	photoroom:v1/segment:9f86d08...:format=png:size=full
func (k Key) String() string {
	parts := []string{KeyPrefix}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}
	if k.ImageDigest != "" {
		parts = append(parts, k.ImageDigest)
	}

	if len(k.Params) > 0 {
		keys := make([]string, 0, len(k.Params))
		for key := range k.Params {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			values := append([]string(nil), k.Params[key]...)
			sort.Strings(values)
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(values, ",")))
		}
	}

	return strings.Join(parts, ":")
}
