package claims

import (
	"context"
	"sort"
	"strings"

	"genaiops/internal/objstore"
)

const DefaultPolicyKey = "policies/policy_snippets.json"

type Policy struct {
	ID       string   `json:"id,omitempty"`
	Text     string   `json:"text"`
	Keywords []string `json:"keywords"`
}

// PolicyIndex is a keyword lookup over policy snippets.
type PolicyIndex struct {
	policies []Policy
}

func NewPolicyIndex(policies []Policy) *PolicyIndex {
	return &PolicyIndex{policies: policies}
}

// LoadPolicies reads a JSON array of policies from S3.
func LoadPolicies(ctx context.Context, store *objstore.Store, bucket, key string) (*PolicyIndex, error) {
	var ps []Policy
	if err := store.GetJSON(ctx, bucket, key, &ps); err != nil {
		return nil, err
	}
	return NewPolicyIndex(ps), nil
}

func (ix *PolicyIndex) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.policies)
}

// Retrieve scores each policy by how many of its keywords occur in the
// claim text (case-insensitive substring) and joins the top 3 snippets
// with blank lines. Equal scores keep file order.
func (ix *PolicyIndex) Retrieve(claim string) string {
	if ix == nil {
		return ""
	}
	text := strings.ToLower(claim)

	type hit struct {
		score int
		text  string
	}
	var hits []hit
	for _, p := range ix.policies {
		score := 0
		for _, kw := range p.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(text, kw) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, hit{score: score, text: p.Text})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	if len(hits) > 3 {
		hits = hits[:3]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.text
	}
	return strings.Join(out, "\n\n")
}
