// Package prompt turns validated request parameters into deterministic
// prompt text. It performs no I/O and keeps no state.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/zhouzirui/drafting/backend/internal/apperr"
	"github.com/zhouzirui/drafting/backend/internal/model/document"
)

// MaxInputLength caps every free-text field, counted in characters after trimming.
const MaxInputLength = 5000

// EmailInput carries the email fields. Empty Recipient/Subject are treated as absent.
type EmailInput struct {
	Context   string
	Recipient string
	Subject   string
	Tone      string
}

// ReportInput carries the report fields. Empty KeyPoints is absent; empty
// Structure resolves to document.DefaultStructure.
type ReportInput struct {
	Topic     string
	KeyPoints string
	Tone      string
	Structure string
}

// BuildEmailPrompt assembles the email prompt.
func BuildEmailPrompt(in EmailInput) (string, error) {
	context, err := requireField("context", in.Context)
	if err != nil {
		return "", err
	}
	tone, err := resolveTone(in.Tone)
	if err != nil {
		return "", err
	}
	recipient, err := optionalField("recipient", in.Recipient)
	if err != nil {
		return "", err
	}
	subject, err := optionalField("subject", in.Subject)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(roleDefinition)
	section(&b, "Task", emailTask)
	section(&b, "Tone", emailToneGuidance[tone])
	section(&b, "Format Requirements", emailFormat)
	section(&b, "Context", context)
	if recipient != "" {
		section(&b, "Recipient", recipient)
	}
	if subject != "" {
		section(&b, "Subject/Topic", subject)
	}
	section(&b, "Output", emailClosing)
	return b.String(), nil
}

// BuildReportPrompt assembles the report prompt.
func BuildReportPrompt(in ReportInput) (string, error) {
	topic, err := requireField("topic", in.Topic)
	if err != nil {
		return "", err
	}
	tone, err := resolveTone(in.Tone)
	if err != nil {
		return "", err
	}
	structure, ok := document.ResolveStructure(in.Structure)
	if !ok {
		return "", apperr.Invalid("structure", fmt.Sprintf("%q is not valid. Must be one of: %s", in.Structure, strings.Join(document.Structures(), ", ")))
	}
	keyPoints, err := optionalField("key_points", in.KeyPoints)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(roleDefinition)
	section(&b, "Task", reportTask)
	section(&b, "Tone", reportToneGuidance[tone])
	section(&b, "Structure", structureGuidance[structure])
	section(&b, "Format Requirements", reportFormat)
	section(&b, "Topic", topic)
	if keyPoints != "" {
		section(&b, "Key Points to Address", keyPoints)
	}
	section(&b, "Output", reportClosing)
	return b.String(), nil
}

func section(b *strings.Builder, heading, body string) {
	b.WriteString("\n\n## ")
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(body)
}

func requireField(name, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", apperr.Invalid(name, "cannot be empty")
	}
	if utf8.RuneCountInString(trimmed) > MaxInputLength {
		return "", apperr.Invalid(name, fmt.Sprintf("exceeds maximum length of %d characters", MaxInputLength))
	}
	return trimmed, nil
}

func optionalField(name, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", nil
	}
	if utf8.RuneCountInString(trimmed) > MaxInputLength {
		return "", apperr.Invalid(name, fmt.Sprintf("exceeds maximum length of %d characters", MaxInputLength))
	}
	return trimmed, nil
}

func resolveTone(raw string) (document.Tone, error) {
	tone, ok := document.ParseTone(raw)
	if !ok {
		return "", apperr.Invalid("tone", fmt.Sprintf("%q is not valid. Must be one of: %s", raw, strings.Join(document.Tones(), ", ")))
	}
	return tone, nil
}
