// Package e2e provides end-to-end tests; this file builds small image files for drop-folder tests.
package e2e

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// SupportedImageExtensions are the image types written by WriteImage.
var SupportedImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".tiff", ".bmp"}

// WriteImage returns an encoded w×h image for the extension of name, filled
// with a color derived from seed so that files differ.
func WriteImage(name string, w, h, seed int) ([]byte, error) {
	format, err := imaging.FormatFromFilename(name)
	if err != nil {
		return nil, fmt.Errorf("unsupported image %s: %w", filepath.Ext(name), err)
	}
	img := imaging.New(w, h, color.NRGBA{
		R: uint8(seed * 37),
		G: uint8(seed * 91),
		B: uint8(seed * 53),
		A: 255,
	})
	// One differing pixel keeps checksums distinct for equal seeds and sizes.
	img.Set(0, 0, color.NRGBA{R: uint8(len(name)), A: 255})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ImageSize decodes data and returns its dimensions.
func ImageSize(data []byte) (image.Point, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return image.Point{}, err
	}
	return img.Bounds().Size(), nil
}

// IsImageExtension reports whether ext is one WriteImage can produce.
func IsImageExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range SupportedImageExtensions {
		if e == ext {
			return true
		}
	}
	return false
}
