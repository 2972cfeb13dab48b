package lexical

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrigramIndex_Candidates(t *testing.T) {
	idx, err := NewTrigramIndex("")
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.IndexBatch(map[string]string{
		"a": "birthday party balloons",
		"b": "corporate headshot studio",
		"c": "kids party games",
	}))
	ids, err := idx.Candidates(context.Background(), "party", 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "c"}, ids)

	ids, err = idx.Candidates(context.Background(), "!!", 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestTrigramIndex_ReplaceAndDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trigrams")
	idx, err := NewTrigramIndex(path)
	require.NoError(t, err)
	defer idx.Close()
	ctx := context.Background()

	require.NoError(t, idx.Index("a", "sunset beach"))
	require.NoError(t, idx.Index("a", "mountain lake"))
	ids, err := idx.Candidates(ctx, "beach", 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = idx.Candidates(ctx, "lake", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)

	require.NoError(t, idx.Delete("a"))
	n, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
}
