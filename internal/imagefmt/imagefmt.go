// Package imagefmt is the single allow-list of image formats the tagger handles.
package imagefmt

import (
	"path/filepath"
	"strings"
)

// Format identifies a supported image container.
type Format string

const (
	Unknown Format = ""
	JPEG    Format = "jpeg"
	PNG     Format = "png"
	HEIC    Format = "heic"
)

var byExtension = map[string]Format{
	".jpg":  JPEG,
	".jpeg": JPEG,
	".png":  PNG,
	".heic": HEIC,
}

var mimeTypes = map[Format]string{
	JPEG: "image/jpeg",
	PNG:  "image/png",
	HEIC: "image/heic",
}

// FromPath returns the format implied by the file extension (case-insensitive).
func FromPath(path string) Format {
	return byExtension[strings.ToLower(filepath.Ext(path))]
}

// Supported reports whether the path has an allow-listed extension.
func Supported(path string) bool {
	return FromPath(path) != Unknown
}

// MimeType returns the MIME type for the format, or "" for Unknown.
func (f Format) MimeType() string {
	return mimeTypes[f]
}
