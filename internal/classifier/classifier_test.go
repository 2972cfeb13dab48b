package classifier

import (
	"testing"

	"github.com/hyperjump/kura/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		filename  string
		albumPath string
		want      string
		rule      Rule
	}{
		{"IMG_0001.jpg", "Launch/Brand Kit/Logos", models.AssetTypeTemplate, RuleAlbum},
		{"anything.png", "Marketing/SOCIAL MEDIA TEMPLATES", models.AssetTypeTemplate, RuleAlbum},
		{"Summer-Flyer.png", "", models.AssetTypeTemplate, RuleFilename},
		{"Editable_Story.psd", "Events", models.AssetTypeTemplate, RuleFilename},
		{"Brooklyn_Opening.jpg", "", models.AssetTypeInspiration, RuleLocation},
		{"ann_arbor-team.jpg", "", models.AssetTypeInspiration, RuleLocation},
		{"party_2024.jpg", "", models.AssetTypeInspiration, RuleDate},
		{"Black Friday Sale.jpg", "", models.AssetTypeInspiration, RuleEvent},
		{"kids-jumping.jpg", "", models.AssetTypeInspiration, RuleDefault},
		// Template wins over location.
		{"brooklyn-flyer.png", "", models.AssetTypeTemplate, RuleFilename},
	}
	for _, tt := range tests {
		got := Classify(tt.filename, tt.albumPath)
		if got.AssetType != tt.want || got.Rule != tt.rule {
			t.Errorf("Classify(%q, %q) = %+v, want %s/%s", tt.filename, tt.albumPath, got, tt.want, tt.rule)
		}
	}
}

func TestInferMediaType(t *testing.T) {
	tests := []struct {
		contentType, filename, want string
	}{
		{"image/jpeg", "x.bin", MediaImage},
		{"video/mp4", "", MediaVideo},
		{"application/pdf", "", MediaDocument},
		{"", "clip.MOV", MediaVideo},
		{"", "brief.docx", MediaDocument},
		{"application/octet-stream", "logo.psd", MediaImage},
		{"", "archive.zip", MediaOther},
		{"", "noext", MediaOther},
	}
	for _, tt := range tests {
		if got := InferMediaType(tt.contentType, tt.filename); got != tt.want {
			t.Errorf("InferMediaType(%q, %q) = %q, want %q", tt.contentType, tt.filename, got, tt.want)
		}
	}
}

func TestAlbumName(t *testing.T) {
	if AlbumName("") != nil {
		t.Error("empty path should have no album name")
	}
	if got := AlbumName("Root/Events/ Summer Camp "); got == nil || *got != "Summer Camp" {
		t.Errorf("AlbumName = %v", got)
	}
	if got := AlbumName("Solo"); got == nil || *got != "Solo" {
		t.Errorf("AlbumName = %v", got)
	}
}

func TestCurrentRules(t *testing.T) {
	r := CurrentRules()
	if len(r.TemplateAlbums) == 0 || r.TemplateAlbums[0] != "brand kit" {
		t.Errorf("TemplateAlbums = %v", r.TemplateAlbums)
	}
	if len(r.DatePatterns) != len(datePatterns) {
		t.Errorf("DatePatterns = %v", r.DatePatterns)
	}
	r.TemplatePatterns[0] = "changed"
	if templatePatterns[0] == "changed" {
		t.Error("CurrentRules must return copies")
	}
}
