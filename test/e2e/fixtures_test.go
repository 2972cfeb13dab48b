package e2e

import (
	"testing"
)

func TestWriteImage_AllExtensionsDecodable(t *testing.T) {
	for i, ext := range SupportedImageExtensions {
		t.Run(ext, func(t *testing.T) {
			data, err := WriteImage("sample"+ext, 40, 30, i)
			if err != nil {
				t.Fatalf("WriteImage: %v", err)
			}
			size, err := ImageSize(data)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if size.X != 40 || size.Y != 30 {
				t.Errorf("size = %v, want 40x30", size)
			}
		})
	}
}

func TestWriteImage_Unsupported(t *testing.T) {
	if _, err := WriteImage("clip.mp4", 10, 10, 1); err == nil {
		t.Error("expected an error for a video extension")
	}
	if IsImageExtension(".mp4") || !IsImageExtension(".PNG") {
		t.Error("IsImageExtension mismatch")
	}
}
