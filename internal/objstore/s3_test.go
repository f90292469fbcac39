package objstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genaiops/internal/objstore"
	"genaiops/internal/objstore/objstoretest"
)

func TestStoreJSONRoundTrip(t *testing.T) {
	mem := objstoretest.NewMemory()
	st := objstore.New(mem)
	ctx := context.Background()

	require.NoError(t, st.PutJSON(ctx, "data", "a/b.json", map[string]any{"n": 1}))
	assert.Equal(t, "application/json", mem.ContentType("data", "a/b.json"))

	var got map[string]int
	require.NoError(t, st.GetJSON(ctx, "data", "a/b.json", &got))
	assert.Equal(t, 1, got["n"])
}

func TestStoreMissingKey(t *testing.T) {
	st := objstore.New(objstoretest.NewMemory())
	_, err := st.GetBytes(context.Background(), "data", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data/nope")
	assert.True(t, objstore.IsNotFound(err))
	assert.False(t, objstore.IsNotFound(errors.New("access denied")))
}

func TestParseURI(t *testing.T) {
	cases := []struct {
		in, bucket, key string
	}{
		{"s3://data/transcriptions/a.json", "data", "transcriptions/a.json"},
		{"https://s3.us-east-1.amazonaws.com/data/transcriptions/a.json", "data", "transcriptions/a.json"},
		{"https://s3.amazonaws.com/data/x.json", "data", "x.json"},
		{"https://data.s3.amazonaws.com/transcriptions/a.json", "data", "transcriptions/a.json"},
		{"https://data.s3.eu-west-1.amazonaws.com/t/a.json", "data", "t/a.json"},
	}
	for _, c := range cases {
		b, k, err := objstore.ParseURI(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.bucket, b, c.in)
		assert.Equal(t, c.key, k, c.in)
	}

	for _, bad := range []string{"s3://only-bucket", "ftp://x/y", "https://s3.amazonaws.com/bucket"} {
		_, _, err := objstore.ParseURI(bad)
		assert.Error(t, err, bad)
	}
}
