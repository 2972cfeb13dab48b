// Package classifier assigns asset types and media types from filenames,
// album paths and MIME types.
package classifier

import (
	"path"
	"regexp"
	"strings"

	"github.com/hyperjump/kura/internal/models"
)

// Rule names the check that decided a classification.
type Rule string

const (
	RuleAlbum    Rule = "album"
	RuleFilename Rule = "filename"
	RuleLocation Rule = "location"
	RuleDate     Rule = "date"
	RuleEvent    Rule = "event"
	RuleDefault  Rule = "default"
)

// Result is a classification and the rule that produced it.
type Result struct {
	AssetType string
	Rule      Rule
}

var templateAlbums = []string{"brand kit", "templates", "social media templates", "marketing templates"}

var templatePatterns = []string{"template", "flyer", "generic", "base", "blank", "editable"}

// Matched against the collapsed name, so separators are already gone.
var locationPatterns = []string{
	"brooklyn", "annarbor", "westhouston", "warwick", "lewisville",
	"clearwater", "northattleboro", "edison", "springfield", "richmond",
	"trumbull", "norwalk", "freehold", "woodbridge", "deptford",
	"whitemarsh", "plymouth", "norristown",
}

var eventPatterns = []string{
	"grandopening", "mlkday", "presidentsday", "stpatricks", "eid",
	"blackfriday", "newyears", "laborday", "memorialday", "4thofjuly",
	"july4th", "thanksgiving", "christmas", "halloween", "easter", "valentines",
}

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{4}`),
	regexp.MustCompile(`(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)\d{4}`),
	regexp.MustCompile(`_\d{2}_\d{2}_`),
	regexp.MustCompile(`\d{1,2}[-/]\d{1,2}[-/]\d{2,4}`),
}

// collapse lowercases name and strips spaces, dashes and underscores.
func collapse(name string) string {
	return strings.NewReplacer(" ", "", "-", "", "_", "").Replace(strings.ToLower(name))
}

// Classify decides whether an asset is a reusable template or inspiration.
// Assets are inspiration unless something marks them as templates.
func Classify(filename, albumPath string) Result {
	album := strings.ToLower(albumPath)
	for _, a := range templateAlbums {
		if strings.Contains(album, a) {
			return Result{AssetType: models.AssetTypeTemplate, Rule: RuleAlbum}
		}
	}

	name := collapse(filename)
	if containsAny(name, templatePatterns) {
		return Result{AssetType: models.AssetTypeTemplate, Rule: RuleFilename}
	}
	if containsAny(name, locationPatterns) {
		return Result{AssetType: models.AssetTypeInspiration, Rule: RuleLocation}
	}
	for _, re := range datePatterns {
		if re.MatchString(name) {
			return Result{AssetType: models.AssetTypeInspiration, Rule: RuleDate}
		}
	}
	if containsAny(name, eventPatterns) {
		return Result{AssetType: models.AssetTypeInspiration, Rule: RuleEvent}
	}
	return Result{AssetType: models.AssetTypeInspiration, Rule: RuleDefault}
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// Media types.
const (
	MediaImage    = "image"
	MediaVideo    = "video"
	MediaDocument = "document"
	MediaOther    = "other"
)

var documentContentTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

var extensionMedia = map[string]string{
	"jpg": MediaImage, "jpeg": MediaImage, "png": MediaImage, "gif": MediaImage,
	"webp": MediaImage, "svg": MediaImage, "eps": MediaImage, "ai": MediaImage,
	"psd": MediaImage, "tiff": MediaImage, "bmp": MediaImage,
	"mp4": MediaVideo, "mov": MediaVideo, "avi": MediaVideo, "webm": MediaVideo,
	"mkv": MediaVideo, "m4v": MediaVideo,
	"pdf": MediaDocument, "doc": MediaDocument, "docx": MediaDocument,
	"txt": MediaDocument, "rtf": MediaDocument,
}

// InferMediaType maps a MIME type, or failing that a file extension, to
// image, video, document or other.
func InferMediaType(contentType, filename string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return MediaImage
	case strings.HasPrefix(contentType, "video/"):
		return MediaVideo
	case documentContentTypes[contentType]:
		return MediaDocument
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
	if m, ok := extensionMedia[ext]; ok {
		return m
	}
	return MediaOther
}

// AlbumName returns the last segment of a "/"-separated album path, or nil
// when the path is empty.
func AlbumName(albumPath string) *string {
	if albumPath == "" {
		return nil
	}
	parts := strings.Split(albumPath, "/")
	return models.Ptr(strings.TrimSpace(parts[len(parts)-1]))
}

// Rules describes the classification patterns for uploaders.
type Rules struct {
	TemplateAlbums   []string `json:"reusable_albums"`
	TemplatePatterns []string `json:"reusable_patterns"`
	LocationPatterns []string `json:"location_patterns"`
	DatePatterns     []string `json:"date_patterns"`
	EventPatterns    []string `json:"event_patterns"`
}

// CurrentRules returns a copy of the patterns Classify applies.
func CurrentRules() Rules {
	dates := make([]string, len(datePatterns))
	for i, re := range datePatterns {
		dates[i] = re.String()
	}
	return Rules{
		TemplateAlbums:   append([]string(nil), templateAlbums...),
		TemplatePatterns: append([]string(nil), templatePatterns...),
		LocationPatterns: append([]string(nil), locationPatterns...),
		DatePatterns:     dates,
		EventPatterns:    append([]string(nil), eventPatterns...),
	}
}
