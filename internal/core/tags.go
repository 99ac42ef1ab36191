package core

import (
	"sort"
	"strings"
)

// PersonaPrefix starts every persona tag. Matching is case-insensitive.
const PersonaPrefix = "think like "

// UnknownRank is the rank of tags outside the vocabulary. It is greater than
// every defined rank so unknown tags sort last but are still walked.
const UnknownRank = 999

// TagKind is the closed set of tag kinds the workflow understands.
type TagKind int

const (
	KindUnknown TagKind = iota
	KindPersona
	KindInterrogate
	KindRewrite
	KindEstimate
	KindExpand
	KindCritique
	KindUserStories
	KindToDo
	KindCode
	KindConfirm
)

// actionVocabulary maps the normalized spelling of each action tag to its kind.
var actionVocabulary = map[string]TagKind{
	"interrogate":  KindInterrogate,
	"rewrite":      KindRewrite,
	"estimate":     KindEstimate,
	"expand":       KindExpand,
	"critique":     KindCritique,
	"user stories": KindUserStories,
	"to-do":        KindToDo,
	"code":         KindCode,
	"confirm":      KindConfirm,
}

// ActionTags lists the action tag names in processing order.
var ActionTags = []string{
	"interrogate",
	"rewrite",
	"estimate",
	"expand",
	"critique",
	"user stories",
	"to-do",
	"code",
	"confirm",
}

// String returns the canonical tag name of the kind.
func (k TagKind) String() string {
	switch k {
	case KindPersona:
		return "think like"
	case KindInterrogate:
		return "interrogate"
	case KindRewrite:
		return "rewrite"
	case KindEstimate:
		return "estimate"
	case KindExpand:
		return "expand"
	case KindCritique:
		return "critique"
	case KindUserStories:
		return "user stories"
	case KindToDo:
		return "to-do"
	case KindCode:
		return "code"
	case KindConfirm:
		return "confirm"
	default:
		return "unknown"
	}
}

// Rank is the processing position of the kind; lower runs first.
//
// Phase 1 sets context (persona), phase 2 refines the task (interrogate
// through user stories), phase 3 acts on it (to-do, code) and phase 4
// verifies (confirm).
func (k TagKind) Rank() int {
	switch k {
	case KindPersona:
		return 1
	case KindInterrogate:
		return 2
	case KindRewrite:
		return 3
	case KindEstimate:
		return 4
	case KindExpand:
		return 5
	case KindCritique:
		return 6
	case KindUserStories:
		return 7
	case KindToDo:
		return 8
	case KindCode:
		return 9
	case KindConfirm:
		return 10
	default:
		return UnknownRank
	}
}

// Tag is a parsed workflow tag. Raw is the tag exactly as stored; Persona is
// only set for persona tags.
type Tag struct {
	Raw     string
	Kind    TagKind
	Persona string
}

// NormalizeTag trims and lower-cases a tag for comparison.
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// ParseTag classifies any string as a Tag. It never fails: strings outside
// the vocabulary come back as KindUnknown.
func ParseTag(raw string) Tag {
	if persona, ok := ExtractPersona(raw); ok {
		return Tag{Raw: raw, Kind: KindPersona, Persona: persona}
	}
	if kind, ok := actionVocabulary[NormalizeTag(raw)]; ok {
		return Tag{Raw: raw, Kind: kind}
	}
	return Tag{Raw: raw, Kind: KindUnknown}
}

// ParseActionTag returns the kind for a known action tag name, or false.
func ParseActionTag(name string) (TagKind, bool) {
	kind, ok := actionVocabulary[NormalizeTag(name)]
	return kind, ok
}

// Rank returns the processing rank of a raw tag.
func Rank(tag string) int {
	return ParseTag(tag).Kind.Rank()
}

// ExtractPersona returns the text after the persona prefix with surrounding
// whitespace removed and its case untouched. ok is false for non-persona tags.
func ExtractPersona(tag string) (persona string, ok bool) {
	trimmed := strings.TrimSpace(tag)
	if len(trimmed) < len(PersonaPrefix) {
		return "", false
	}
	if !strings.EqualFold(trimmed[:len(PersonaPrefix)], PersonaPrefix) {
		return "", false
	}
	return strings.TrimSpace(trimmed[len(PersonaPrefix):]), true
}

// IsPersonaTag reports whether tag sets a persona.
func IsPersonaTag(tag string) bool {
	_, ok := ExtractPersona(tag)
	return ok
}

// SortByPriority returns a copy of tags ordered by Rank. Tags of equal rank
// keep their input order. The input slice is not modified.
func SortByPriority(tags []string) []string {
	sorted := make([]string, len(tags))
	copy(sorted, tags)
	sort.SliceStable(sorted, func(i, j int) bool {
		return Rank(sorted[i]) < Rank(sorted[j])
	})
	return sorted
}
