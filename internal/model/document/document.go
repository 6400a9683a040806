package document

import (
	"strings"
	"time"
	"unicode/utf8"
)

// DocType distinguishes generated emails from reports.
type DocType string

const (
	TypeEmail  DocType = "email"
	TypeReport DocType = "report"
)

// ParseDocType accepts "email" or "report" (case-insensitive).
func ParseDocType(raw string) (DocType, bool) {
	switch DocType(strings.ToLower(strings.TrimSpace(raw))) {
	case TypeEmail:
		return TypeEmail, true
	case TypeReport:
		return TypeReport, true
	}
	return "", false
}

// Document is a persisted generation result. It is never mutated after creation.
type Document struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	DocType     DocType    `json:"doc_type"`
	Title       *string    `json:"title"`
	PromptInput *string    `json:"prompt_input"`
	Content     string     `json:"content"`
	Tone        Tone       `json:"tone"`
	Structure   *Structure `json:"structure"`
	CreatedAt   time.Time  `json:"created_at"`
}

// PreviewLength is the number of characters kept in history previews.
const PreviewLength = 200

// Summary is the trimmed-down history row shown in listings.
type Summary struct {
	ID             int64      `json:"id"`
	DocType        DocType    `json:"doc_type"`
	Title          *string    `json:"title"`
	Tone           Tone       `json:"tone"`
	Structure      *Structure `json:"structure"`
	CreatedAt      time.Time  `json:"created_at"`
	ContentPreview string     `json:"content_preview"`
}

// Summarize builds the listing view of a document.
func (d Document) Summarize() Summary {
	return Summary{
		ID:             d.ID,
		DocType:        d.DocType,
		Title:          d.Title,
		Tone:           d.Tone,
		Structure:      d.Structure,
		CreatedAt:      d.CreatedAt,
		ContentPreview: Preview(d.Content),
	}
}

// Preview truncates content to PreviewLength characters followed by "...".
func Preview(content string) string {
	if utf8.RuneCountInString(content) <= PreviewLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:PreviewLength]) + "..."
}

// MaxTitleLength matches the width of the documents.title column.
const MaxTitleLength = 500

// TruncateTitle cuts s to MaxTitleLength runes.
func TruncateTitle(s string) string {
	if utf8.RuneCountInString(s) <= MaxTitleLength {
		return s
	}
	return string([]rune(s)[:MaxTitleLength])
}

// ListFilter scopes history queries. UserID is mandatory.
type ListFilter struct {
	UserID  int64
	DocType DocType
	Limit   int
	Offset  int
}

// OptionalString returns nil for blank strings.
func OptionalString(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
