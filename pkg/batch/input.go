package batch

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultPattern names persisted outputs by input index and file name.
const DefaultPattern = "{index}_{name}"

// Artifact is the result of a successful operation.
type Artifact interface {
	// Persist writes the artifact to path.
	Persist(path string) error

	// Size returns the artifact size in bytes.
	Size() int
}

// Operation processes a single input. Parameters are bound by the caller's closure.
type Operation func(ctx context.Context, in Input) (Artifact, error)

// Input is one batch item: a file on disk or raw image bytes.
type Input struct {
	// Path is the source file. Takes precedence over Data.
	Path string

	// Data holds raw image bytes when Path is empty.
	Data []byte

	// Name optionally overrides the file name used for byte inputs.
	Name string
}

// FromPaths builds inputs from file paths.
func FromPaths(paths ...string) []Input {
	inputs := make([]Input, len(paths))
	for i, p := range paths {
		inputs[i] = Input{Path: p}
	}
	return inputs
}

// FromBytes builds inputs from in-memory images.
func FromBytes(images ...[]byte) []Input {
	inputs := make([]Input, len(images))
	for i, b := range images {
		inputs[i] = Input{Data: b}
	}
	return inputs
}

// IsFile reports whether the input refers to a path.
func (in Input) IsFile() bool {
	return in.Path != ""
}

// Descriptor identifies the input in outcomes: the path, or bytes_input_<index>.
func (in Input) Descriptor(index int) string {
	if in.IsFile() {
		return in.Path
	}
	return fmt.Sprintf("bytes_input_%d", index)
}

// FileName returns the base name of the input path, the base of the explicit
// Name, or image_<index>.png for anonymous bytes. The result never contains
// a path separator.
func (in Input) FileName(index int) string {
	if in.IsFile() {
		return filepath.Base(in.Path)
	}
	if name := filepath.Base(filepath.FromSlash(in.Name)); in.Name != "" && isPlainName(name) {
		return name
	}
	return fmt.Sprintf("image_%d.png", index)
}

func isPlainName(name string) bool {
	return name != "." && name != ".." && name != string(filepath.Separator)
}

// FormatFilename expands {index} and {name} in pattern.
func FormatFilename(pattern string, index int, name string) string {
	if pattern == "" {
		pattern = DefaultPattern
	}
	return strings.NewReplacer(
		"{index}", strconv.Itoa(index),
		"{name}", name,
	).Replace(pattern)
}
