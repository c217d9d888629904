package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerdictTerminality(t *testing.T) {
	assert.False(t, VerdictPending.IsTerminal())
	assert.False(t, VerdictDraft.IsTerminal())
	assert.True(t, VerdictAccepted.IsTerminal())
	assert.True(t, VerdictSystemError.IsTerminal())
	assert.False(t, Verdict(42).IsTerminal())
}

func TestVerdictJSONRejectsUnknownStrings(t *testing.T) {
	var v Verdict
	require.NoError(t, json.Unmarshal([]byte(`"Time Limit Exceeded"`), &v))
	assert.Equal(t, VerdictTimeLimitExceeded, v)

	assert.Error(t, json.Unmarshal([]byte(`"Maybe Accepted"`), &v))
}

func TestDisplayVerdictPrefixesTestRuns(t *testing.T) {
	sub := Submission{Verdict: VerdictAccepted, TestRun: true}
	assert.Equal(t, "Test - Accepted", sub.DisplayVerdict())

	sub.TestRun = false
	assert.Equal(t, "Accepted", sub.DisplayVerdict())
}

func TestProblemStatsRecord(t *testing.T) {
	var stats ProblemStats
	stats.Record(true)
	stats.Record(false)
	stats.Record(false)

	assert.Equal(t, 3, stats.TotalSubmissions)
	assert.Equal(t, 1, stats.AcceptedSubmissions)
	assert.Equal(t, 33.33, stats.AcceptanceRate)
}
