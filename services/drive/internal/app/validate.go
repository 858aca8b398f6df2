package app

import (
	"mime"
	"strings"
)

// DefaultMaxUploadBytes is the upload ceiling when none is configured.
const DefaultMaxUploadBytes int64 = 10 << 20

const maxFileNameRunes = 255

var allowedContentTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
	"video/mp4":  {},
	"video/webm": {},
}

// NormalizeContentType lower-cases the media type and drops parameters.
func NormalizeContentType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// ValidateUpload checks the declared type and size of an upload. The declared
// size is advisory; the blob write enforces maxBytes on the actual stream.
func ValidateUpload(contentType string, size, maxBytes int64) error {
	if _, ok := allowedContentTypes[NormalizeContentType(contentType)]; !ok {
		return ErrInvalidFileType
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if size > maxBytes {
		return ErrFileTooLarge
	}
	return nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNameRequired
	}
	if len([]rune(name)) > maxFileNameRunes {
		return "", ErrNameTooLong
	}
	return name, nil
}
