package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genaiops/internal/dataquality"
)

func TestDQRulesPrintsRuleset(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"dq", "rules"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	got := strings.TrimSpace(out.String())
	assert.Equal(t, dataquality.Render(dataquality.CustomerReviewRules()), got)
	assert.True(t, strings.HasPrefix(got, "Rules = ["))
}

func TestListSplitsCommaValues(t *testing.T) {
	v.Set("test-models", []string{"model-a,model-b", " model-c ", ""})
	assert.Equal(t, []string{"model-a", "model-b", "model-c"}, list("test-models"))
	assert.Nil(t, list("test-missing"))
}

func TestAuditExportRejectsBadInput(t *testing.T) {
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	rootCmd.SetArgs([]string{"audit", "export", "--date", "yesterday"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--date must be YYYY-MM-DD")

	rootCmd.SetArgs([]string{"audit", "export", "--date", "2026-10-15", "--table", "audit"})
	err = rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUDIT_LOGS_BUCKET")
}
