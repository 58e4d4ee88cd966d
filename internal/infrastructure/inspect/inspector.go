// Package inspect checks uploaded bytes before they are stored.
package inspect

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/termination-portal/internal/core/domain"
)

const (
	TypePDF  = "application/pdf"
	TypePNG  = "image/png"
	TypeJPEG = "image/jpeg"
)

var extensions = map[string][]string{
	TypePDF:  {".pdf"},
	TypePNG:  {".png"},
	TypeJPEG: {".jpg", ".jpeg"},
}

// Inspector sniffs the content type, lets only PDF, PNG and JPEG through
// and makes sure the file actually parses.
type Inspector struct {
	maxImagePixels int
}

func New() *Inspector {
	return &Inspector{maxImagePixels: 50_000_000}
}

func (i *Inspector) Inspect(filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", invalid(filename, "file is empty")
	}
	contentType := sniff(data)
	if _, ok := extensions[contentType]; !ok {
		return "", invalid(filename, fmt.Sprintf("content type %s is not accepted", contentType))
	}
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" && !matchesExtension(contentType, ext) {
		return "", invalid(filename, fmt.Sprintf("extension %s does not match content %s", ext, contentType))
	}

	switch contentType {
	case TypePDF:
		if err := checkPDF(data); err != nil {
			return "", invalid(filename, err.Error())
		}
	default:
		if err := i.checkImage(data); err != nil {
			return "", invalid(filename, err.Error())
		}
	}
	return contentType, nil
}

// Extension returns the canonical file extension for an accepted type.
func Extension(contentType string) string {
	if exts, ok := extensions[contentType]; ok {
		return exts[0]
	}
	return ""
}

func sniff(data []byte) string {
	ct := http.DetectContentType(data)
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = ct[:idx]
	}
	return strings.TrimSpace(ct)
}

func matchesExtension(contentType, ext string) bool {
	for _, candidate := range extensions[contentType] {
		if candidate == ext {
			return true
		}
	}
	return false
}

func checkPDF(data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf is malformed: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("pdf is malformed: %w", err)
	}
	if reader.NumPage() < 1 {
		return fmt.Errorf("pdf has no pages")
	}
	return nil
}

func (i *Inspector) checkImage(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("image does not decode: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("image has no pixels")
	}
	if cfg.Width*cfg.Height > i.maxImagePixels {
		return fmt.Errorf("image is %dx%d, too large", cfg.Width, cfg.Height)
	}
	return nil
}

func invalid(filename, reason string) error {
	return domain.WrapError(domain.ErrInvalidInput, "inspect upload", fmt.Errorf("%s: %s", filename, reason))
}
