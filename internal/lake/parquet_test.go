package lake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genaiops/internal/objstore/objstoretest"
)

type sampleRow struct {
	Name  string  `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Score float64 `parquet:"name=score, type=DOUBLE"`
}

func TestEncodeProducesParquet(t *testing.T) {
	data, err := Encode([]sampleRow{{Name: "a", Score: 0.5}, {Name: "b", Score: 1}})
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	// Parquet files start and end with the PAR1 magic.
	assert.Equal(t, "PAR1", string(data[:4]))
	assert.Equal(t, "PAR1", string(data[len(data)-4:]))
}

func TestUpload(t *testing.T) {
	mem := objstoretest.NewMemory()
	require.NoError(t, Upload(context.Background(), mem, "lake", "q/dt=2026-01-01/part-x.parquet", []sampleRow{{Name: "a"}}))
	b, ok := mem.Object("lake", "q/dt=2026-01-01/part-x.parquet")
	require.True(t, ok)
	assert.Equal(t, "PAR1", string(b[:4]))
}

func TestPartitionKey(t *testing.T) {
	k := PartitionKey("quality_scores", "2026-02-03", "quality_scores")
	assert.Equal(t, "quality_scores/dt=2026-02-03/quality_scores.parquet", k)
	assert.Equal(t, k, PartitionKey("quality_scores/", "2026-02-03", "quality_scores"))
	assert.Equal(t, "", EnsureTrailingSlash(""))
	assert.Equal(t, "a/", EnsureTrailingSlash("a/"))
}
