package storage

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	ErrFileTooLarge    = errors.New("file exceeds maximum size")
	ErrInvalidMimeType = errors.New("file type not allowed")
	ErrEmptyFile       = errors.New("file is empty")
)

// Upload categories
const (
	CategoryCover = "cover"
	CategoryAsset = "asset"
)

// AllowedMimeTypes per upload category, matched against sniffed content
var AllowedMimeTypes = map[string][]string{
	CategoryCover: {"image/jpeg", "image/png", "image/gif"},
	CategoryAsset: {"application/pdf", "application/zip", "application/x-gzip", "application/octet-stream", "text/plain"},
}

// MaxFileSizes per upload category
var MaxFileSizes = map[string]int64{
	CategoryCover: 10 * 1024 * 1024,
	CategoryAsset: 200 * 1024 * 1024,
}

// ValidateFile reads at most the category limit and checks the sniffed MIME type
func ValidateFile(reader io.Reader, category string) ([]byte, string, error) {
	allowedTypes, ok := AllowedMimeTypes[category]
	if !ok {
		return nil, "", fmt.Errorf("unknown category: %s", category)
	}
	maxSize := MaxFileSizes[category]

	data, err := io.ReadAll(io.LimitReader(reader, maxSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) == 0 {
		return nil, "", ErrEmptyFile
	}
	if int64(len(data)) > maxSize {
		return nil, "", ErrFileTooLarge
	}

	mimeType := http.DetectContentType(data)
	if idx := strings.Index(mimeType, ";"); idx != -1 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}

	for _, t := range allowedTypes {
		if t == mimeType {
			return data, mimeType, nil
		}
	}
	return nil, "", ErrInvalidMimeType
}

// GetExtensionForMime returns the file extension for a MIME type
func GetExtensionForMime(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "application/pdf":
		return ".pdf"
	case "application/zip":
		return ".zip"
	case "application/x-gzip":
		return ".gz"
	case "text/plain":
		return ".txt"
	default:
		return ".bin"
	}
}
