package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/drafting/backend/internal/apperr"
)

func TestBuildEmailPromptIsDeterministic(t *testing.T) {
	in := EmailInput{Context: "ask for a raise", Recipient: "manager", Subject: "Compensation", Tone: "friendly"}

	first, err := BuildEmailPrompt(in)
	require.NoError(t, err)
	second, err := BuildEmailPrompt(in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestBuildEmailPromptSectionOrder(t *testing.T) {
	got, err := BuildEmailPrompt(EmailInput{Context: "  ask for a raise  ", Recipient: " manager ", Subject: "Compensation"})
	require.NoError(t, err)

	order := []string{roleDefinition, "## Task", "## Tone", "## Format Requirements", "## Context\nask for a raise", "## Recipient\nmanager", "## Subject/Topic\nCompensation", "## Output"}
	last := -1
	for _, marker := range order {
		idx := strings.Index(got, marker)
		require.GreaterOrEqualf(t, idx, 0, "missing %q", marker)
		assert.Greaterf(t, idx, last, "%q out of order", marker)
		last = idx
	}
	assert.Contains(t, got, emailToneGuidance["professional"])
}

func TestBuildEmailPromptOmitsAbsentOptionalFields(t *testing.T) {
	got, err := BuildEmailPrompt(EmailInput{Context: "hello", Recipient: "   "})
	require.NoError(t, err)
	assert.NotContains(t, got, "## Recipient")
	assert.NotContains(t, got, "## Subject/Topic")
}

func TestBuildEmailPromptOptionalPresenceChangesOutput(t *testing.T) {
	without, err := BuildEmailPrompt(EmailInput{Context: "hello"})
	require.NoError(t, err)
	with, err := BuildEmailPrompt(EmailInput{Context: "hello", Subject: "Hi"})
	require.NoError(t, err)
	assert.NotEqual(t, without, with)
}

func TestBuildEmailPromptValidation(t *testing.T) {
	cases := map[string]EmailInput{
		"empty context":      {Context: "", Tone: "professional"},
		"whitespace context": {Context: "   \n\t"},
		"too long context":   {Context: strings.Repeat("x", MaxInputLength+1)},
		"unknown tone":       {Context: "ok", Tone: "not-a-tone"},
		"too long subject":   {Context: "ok", Subject: strings.Repeat("s", MaxInputLength+1)},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := BuildEmailPrompt(in)
			var invalid *apperr.InvalidInputError
			assert.ErrorAs(t, err, &invalid)
		})
	}
}

func TestBuildEmailPromptAcceptsMaxLengthAfterTrim(t *testing.T) {
	_, err := BuildEmailPrompt(EmailInput{Context: "  " + strings.Repeat("x", MaxInputLength) + "  "})
	assert.NoError(t, err)
}

func TestBuildEmailPromptDistinctToneGuidance(t *testing.T) {
	seen := map[string]string{}
	for _, tone := range []string{"professional", "casual", "formal", "friendly"} {
		got, err := BuildEmailPrompt(EmailInput{Context: "same", Tone: tone})
		require.NoError(t, err)
		for other, prev := range seen {
			assert.NotEqualf(t, prev, got, "%s and %s produced the same prompt", tone, other)
		}
		seen[tone] = got
	}
}

func TestBuildReportPromptDefaultsToDetailed(t *testing.T) {
	got, err := BuildReportPrompt(ReportInput{Topic: "T"})
	require.NoError(t, err)
	assert.Contains(t, got, structureGuidance["detailed"])
	assert.Contains(t, got, "## Topic\nT")
	assert.NotContains(t, got, "## Key Points to Address")

	explicit, err := BuildReportPrompt(ReportInput{Topic: "T", Structure: "detailed"})
	require.NoError(t, err)
	assert.Equal(t, explicit, got)
}

func TestBuildReportPromptIncludesStructureAndKeyPoints(t *testing.T) {
	got, err := BuildReportPrompt(ReportInput{Topic: "Q3 sales", KeyPoints: "growth 10%", Tone: "formal", Structure: "bullet_points"})
	require.NoError(t, err)

	assert.Contains(t, got, reportToneGuidance["formal"])
	assert.Contains(t, got, structureGuidance["bullet_points"])
	assert.Less(t, strings.Index(got, "## Structure"), strings.Index(got, "## Format Requirements"))
	assert.Less(t, strings.Index(got, "## Topic"), strings.Index(got, "## Key Points to Address\ngrowth 10%"))
	assert.True(t, strings.HasSuffix(got, reportClosing))
}

func TestBuildReportPromptValidation(t *testing.T) {
	_, err := BuildReportPrompt(ReportInput{Topic: "T", Structure: "essay"})
	assert.True(t, apperr.IsInvalidInput(err))

	_, err = BuildReportPrompt(ReportInput{Topic: " "})
	assert.True(t, apperr.IsInvalidInput(err))

	_, err = BuildReportPrompt(ReportInput{Topic: "T", Tone: "sarcastic"})
	assert.True(t, apperr.IsInvalidInput(err))
}
