package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"genaiops/internal/claims"
	"genaiops/internal/llm"
	"genaiops/internal/objstore"
	"genaiops/internal/objstore/objstoretest"
)

type echoInvoker struct{ calls int }

func (e *echoInvoker) Invoke(_ context.Context, r llm.Request) (llm.Completion, error) {
	e.calls++
	return llm.Completion{ModelID: r.ModelID, Text: "{\"model\":\"" + r.ModelID + "\"}"}, nil
}

func newClaimProcessor(mem *objstoretest.Memory, inv llm.Invoker) *ClaimProcessor {
	return &ClaimProcessor{
		store:    objstore.New(mem),
		inv:      inv,
		cfg:      claims.Config{Model: claims.DefaultModel, ValidationModels: []string{claims.DefaultModel}, PolicyKey: claims.DefaultPolicyKey},
		logger:   zap.NewNop(),
		policies: map[string]*claims.PolicyIndex{},
	}
}

func TestClaimProcessorWritesResult(t *testing.T) {
	mem := objstoretest.NewMemory()
	mem.Put(bucket, "claims/claim1.txt", []byte("Policy P-1, hail damage to roof."))
	mem.Put(bucket, claims.DefaultPolicyKey, []byte(`[{"text":"Hail is covered.","keywords":["hail"]}]`))
	inv := &echoInvoker{}
	h := newClaimProcessor(mem, inv)

	resp, err := h.Handle(context.Background(), s3Event("claims/claim1.txt"))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode, resp.Body)

	raw, ok := mem.Object(bucket, "processed-claims/claim1.json")
	require.True(t, ok)
	var res claims.Result
	require.NoError(t, json.Unmarshal(raw, &res))
	assert.Equal(t, "claims/claim1.txt", res.File)
	assert.Equal(t, "Hail is covered.", res.RelevantPolicies)
	assert.Equal(t, claims.ConsensusOK, res.Validation.Consensus)
	assert.Equal(t, 3, inv.calls)
}

func TestClaimProcessorSkipsAndMissingPolicies(t *testing.T) {
	mem := objstoretest.NewMemory()
	mem.Put(bucket, "claims/c.txt", []byte("text"))
	h := newClaimProcessor(mem, &echoInvoker{})

	resp, err := h.Handle(context.Background(), s3Event("raw-data/r.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Not a claim document", bodyString(t, resp))

	resp, err = h.Handle(context.Background(), s3Event("claims/c.txt"))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode, resp.Body)
	assert.Equal(t, 0, h.policies[bucket].Len())

	resp, err = h.Handle(context.Background(), s3Event("claims/missing.txt"))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
}
