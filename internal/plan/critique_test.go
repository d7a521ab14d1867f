package plan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCritique_Validate(t *testing.T) {
	c := Critique{Issues: []Issue{{Severity: SeverityMajor, Description: "missing rollback"}}}
	require.NoError(t, c.Validate())

	assert.NoError(t, (&Critique{Approved: true}).Validate())

	bad := Critique{Issues: []Issue{{Severity: "blocker", Description: "x"}, {Severity: SeverityInfo}}}
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `issue 1: unknown severity "blocker"`)
	assert.Contains(t, err.Error(), "issue 2: description is required")
}

func TestCritique_Normalize(t *testing.T) {
	c := Critique{Issues: []Issue{{Severity: " Major ", Description: "d"}}}
	c.Normalize()
	assert.Equal(t, SeverityMajor, c.Issues[0].Severity)
	assert.NoError(t, c.Validate())
}

func TestSeverity(t *testing.T) {
	assert.True(t, SeverityCritical.Blocking())
	assert.True(t, SeverityMajor.Blocking())
	assert.False(t, SeverityMinor.Blocking())
	assert.False(t, SeverityInfo.Blocking())
	assert.False(t, Severity("urgent").IsValid())
}

func TestCritique_ScrubAndCounts(t *testing.T) {
	c := Critique{
		Issues: []Issue{
			{Severity: SeverityMajor, Description: "a", TargetStepRef: "1"},
			{Severity: SeverityMajor, Description: "b"},
			{Severity: SeverityInfo, Description: "c"},
		},
		Verdict: "needs work",
	}
	s := c.Scrub(strings.ToUpper)
	assert.Equal(t, "A", s.Issues[0].Description)
	assert.Equal(t, SeverityMajor, s.Issues[0].Severity)
	assert.Equal(t, "NEEDS WORK", s.Verdict)
	assert.Equal(t, "a", c.Issues[0].Description)

	counts := c.Counts()
	assert.Equal(t, 2, counts[SeverityMajor])
	assert.Equal(t, 1, counts[SeverityInfo])
}

func TestRepeatedIssues(t *testing.T) {
	prev := &Critique{Issues: []Issue{
		{Severity: SeverityMajor, Description: "No rollback plan", TargetStepRef: "2"},
		{Severity: SeverityMinor, Description: "Naming", TargetStepRef: "3"},
	}}
	cur := &Critique{Issues: []Issue{
		{Severity: SeverityMajor, Description: "Still no ROLLBACK PLAN for the migration", TargetStepRef: "2"},
		{Severity: SeverityMinor, Description: "Naming", TargetStepRef: "1"},
		{Severity: SeverityInfo, Description: "New concern", TargetStepRef: "3"},
	}}

	repeated := RepeatedIssues(prev, cur)
	require.Len(t, repeated, 1)
	assert.Equal(t, "2", repeated[0].TargetStepRef)

	assert.Nil(t, RepeatedIssues(nil, cur))
}
