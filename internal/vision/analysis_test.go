package vision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/models"
)

const sampleResponse = "```json\n" + `{
  "scene": {"setting": "party_room", "setting_details": "decorated party room"},
  "hardcoded_elements": {"has_date": false, "reusability_score": 4},
  "composition": {"negative_space": {"suitable_for_text_overlay": true}},
  "mood": {"primary": "celebratory", "energy_level": 8},
  "framing": {"shot_type": "wide"},
  "auto_tags": ["birthday", "balloons"],
  "semantic_description": "Kids celebrating a birthday with balloons",
  "search_queries": ["birthday party kids"]
}` + "\n```"

func TestParseAnalysis(t *testing.T) {
	an, err := ParseAnalysis(sampleResponse)
	require.NoError(t, err)

	assert.Equal(t, "party_room", an.Sections["scene"].String("setting"))
	assert.NotContains(t, an.Sections, "framing")
	assert.Equal(t, []string{"birthday", "balloons"}, an.AutoTags)
	assert.Equal(t, "Kids celebrating a birthday with balloons", an.SemanticDescription)
	require.NotNil(t, an.ReusabilityScore())
	assert.Equal(t, 4, *an.ReusabilityScore())

	_, err = ParseAnalysis("not json")
	assert.Error(t, err)
}

func TestReusabilityScoreOutOfRange(t *testing.T) {
	an, err := ParseAnalysis(`{"hardcoded_elements": {"reusability_score": 9}}`)
	require.NoError(t, err)
	assert.Nil(t, an.ReusabilityScore())
}

func TestApply(t *testing.T) {
	a := &models.Asset{
		ID:               "x",
		Colors:           models.Document{"dominant": []any{"#fff"}},
		Embedding:        []float32{1, 2},
		ProcessingStatus: models.StatusFailed,
		ProcessingError:  models.Ptr("boom"),
	}
	an, err := ParseAnalysis(sampleResponse)
	require.NoError(t, err)

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	an.Apply(a, at)

	assert.Equal(t, models.StatusEnriched, a.ProcessingStatus)
	assert.Nil(t, a.ProcessingError)
	assert.Nil(t, a.Embedding)
	assert.Equal(t, at, *a.AnalyzedAt)
	assert.Equal(t, 4, *a.ReusabilityScore)
	assert.Equal(t, "celebratory", a.Mood.String("primary"))
	assert.NotNil(t, a.Colors, "omitted sections keep stored values")
	v, ok := a.Composition.Bool("negative_space", "suitable_for_text_overlay")
	assert.True(t, ok && v)
}

// scriptedModel returns canned replies in order.
type scriptedModel struct {
	replies []string
	err     error
	calls   int
}

func (m *scriptedModel) GenerateContent(_ context.Context, msgs []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if len(msgs) != 1 || len(msgs[0].Parts) != 2 {
		return nil, errors.New("expected one message with prompt and image")
	}
	reply := m.replies[len(m.replies)-1]
	if m.calls <= len(m.replies) {
		reply = m.replies[m.calls-1]
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestOpenAIAnalyzer_RetriesMalformedJSON(t *testing.T) {
	model := &scriptedModel{replies: []string{"{broken", sampleResponse}}
	a := newAnalyzer(model, 0, zap.NewNop())

	an, err := a.Analyze(context.Background(), Image{URL: "https://example.com/x.jpg"})
	require.NoError(t, err)
	assert.Equal(t, 2, model.calls)
	assert.Equal(t, []string{"birthday party kids"}, an.SearchQueries)
}

func TestOpenAIAnalyzer_GivesUp(t *testing.T) {
	model := &scriptedModel{replies: []string{"nope"}}
	a := newAnalyzer(model, 0, zap.NewNop())

	_, err := a.Analyze(context.Background(), Image{Data: []byte{0xff, 0xd8}})
	assert.Error(t, err)
	assert.Equal(t, maxParseAttempts, model.calls)
}

func TestOpenAIAnalyzer_TransportErrorNotRetried(t *testing.T) {
	model := &scriptedModel{err: errors.New("429")}
	a := newAnalyzer(model, 0, zap.NewNop())

	_, err := a.Analyze(context.Background(), Image{URL: "https://example.com/x.jpg"})
	assert.Error(t, err)
	assert.Equal(t, 1, model.calls)

	_, err = a.Analyze(context.Background(), Image{})
	assert.Error(t, err)
}

func TestNewOpenAIAnalyzer_NoKey(t *testing.T) {
	_, err := NewOpenAIAnalyzer(OpenAIConfig{Model: "gpt-4o"}, nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestExtractionPrompt(t *testing.T) {
	assert.Contains(t, extractionPrompt(true), "video thumbnail")
	assert.Contains(t, extractionPrompt(false), "Analyze this image")
}
