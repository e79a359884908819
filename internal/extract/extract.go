// Package extract turns uploaded bytes into plain text using langchaingo document loaders.
package extract

import (
	"bytes"
	"context"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/apperr"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

// Extractor converts document bytes of a given content type to text.
type Extractor interface {
	Extract(ctx context.Context, data []byte, contentType string) (string, error)
}

// LoaderExtractor dispatches on content type to a langchaingo loader.
type LoaderExtractor struct{}

// NewLoaderExtractor returns the default extractor.
func NewLoaderExtractor() *LoaderExtractor {
	return &LoaderExtractor{}
}

// extensionTypes maps file extensions to the content types this package understands.
var extensionTypes = map[string]string{
	".txt":      "text/plain",
	".text":     "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".html":     "text/html",
	".htm":      "text/html",
	".csv":      "text/csv",
	".pdf":      "application/pdf",
}

// NormalizeContentType strips parameters from contentType and lowercases it.
// When contentType is empty or generic, the filename extension decides.
func NormalizeContentType(contentType, filename string) string {
	mediaType := ""
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			mediaType = strings.ToLower(mt)
		}
	}
	if mediaType == "" || mediaType == "application/octet-stream" {
		if byExt, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]; ok {
			return byExt
		}
	}
	return mediaType
}

// Extract returns the document text, pages or rows joined by blank lines.
// Unknown types fail with UnsupportedFormat and loader failures with CorruptFile.
func (e *LoaderExtractor) Extract(ctx context.Context, data []byte, contentType string) (string, error) {
	var loader interface {
		Load(ctx context.Context) ([]schema.Document, error)
	}

	switch contentType {
	case "text/plain", "text/markdown":
		if !utf8.Valid(data) {
			return "", apperr.New(apperr.ErrCorruptFile, "%s document is not valid UTF-8", contentType)
		}
		loader = documentloaders.NewText(bytes.NewReader(data))
	case "text/html":
		loader = documentloaders.NewHTML(bytes.NewReader(data))
	case "text/csv":
		loader = documentloaders.NewCSV(bytes.NewReader(data))
	case "application/pdf":
		loader = documentloaders.NewPDF(bytes.NewReader(data), int64(len(data)))
	default:
		return "", apperr.New(apperr.ErrUnsupportedFormat, "no extractor for content type %q", contentType)
	}

	docs, err := loader.Load(ctx)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrCorruptFile, err, "failed to extract %s", contentType)
	}

	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if text := strings.TrimSpace(d.PageContent); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}
