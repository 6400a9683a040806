package document

import (
	"sort"
	"strings"
)

// Tone controls the rhetorical register of generated text.
type Tone string

const (
	ToneProfessional Tone = "professional"
	ToneCasual       Tone = "casual"
	ToneFormal       Tone = "formal"
	ToneFriendly     Tone = "friendly"
)

// DefaultTone applies when a request omits tone.
const DefaultTone = ToneProfessional

var knownTones = map[Tone]struct{}{
	ToneProfessional: {},
	ToneCasual:       {},
	ToneFormal:       {},
	ToneFriendly:     {},
}

// ParseTone checks membership in the tone table. Blank input yields DefaultTone.
func ParseTone(raw string) (Tone, bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return DefaultTone, true
	}
	tone := Tone(normalized)
	if _, ok := knownTones[tone]; !ok {
		return "", false
	}
	return tone, true
}

// Tones lists valid tones in sorted order, for error messages.
func Tones() []string {
	out := make([]string, 0, len(knownTones))
	for t := range knownTones {
		out = append(out, string(t))
	}
	sort.Strings(out)
	return out
}

// Structure controls report section layout.
type Structure string

const (
	StructureExecutiveSummary Structure = "executive_summary"
	StructureDetailed         Structure = "detailed"
	StructureBulletPoints     Structure = "bullet_points"
)

// DefaultStructure applies when a report request omits structure.
const DefaultStructure = StructureDetailed

var knownStructures = map[Structure]struct{}{
	StructureExecutiveSummary: {},
	StructureDetailed:         {},
	StructureBulletPoints:     {},
}

// ParseStructure checks membership in the structure table. Blank input is rejected;
// use ResolveStructure to apply the default.
func ParseStructure(raw string) (Structure, bool) {
	s := Structure(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := knownStructures[s]; !ok {
		return "", false
	}
	return s, true
}

// ResolveStructure applies DefaultStructure to a blank value and validates the rest.
func ResolveStructure(raw string) (Structure, bool) {
	if strings.TrimSpace(raw) == "" {
		return DefaultStructure, true
	}
	return ParseStructure(raw)
}

// Structures lists valid structures in sorted order.
func Structures() []string {
	out := make([]string, 0, len(knownStructures))
	for s := range knownStructures {
		out = append(out, string(s))
	}
	sort.Strings(out)
	return out
}
