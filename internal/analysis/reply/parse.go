// Package reply turns a raw model reply into a reasoning trace, a playback
// segment timeline and the cleaned text stored in the chat log.
package reply

import (
	"regexp"
	"strings"
)

// DefaultAddress is how Chii addresses the user when nothing else is set.
const DefaultAddress = "主人"

// Substitution replaces a forbidden token with the user's address term.
type Substitution struct {
	Find     string `json:"find" yaml:"find"`
	Replace  string `json:"replace" yaml:"replace"`
	FoldCase bool   `json:"foldCase,omitempty" yaml:"foldCase,omitempty"`
}

// DefaultSubstitutions maps 秀逗 / Hideki to address.
func DefaultSubstitutions(address string) []Substitution {
	if strings.TrimSpace(address) == "" {
		address = DefaultAddress
	}
	return []Substitution{
		{Find: "秀逗", Replace: address},
		{Find: "Hideki", Replace: address, FoldCase: true},
	}
}

func (s Substitution) apply(text string) string {
	if s.Find == "" {
		return text
	}
	if !s.FoldCase {
		return strings.ReplaceAll(text, s.Find, s.Replace)
	}
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(s.Find))
	return re.ReplaceAllLiteralString(text, s.Replace)
}

// Result is everything derived from one raw reply.
type Result struct {
	Trace        Trace     `json:"trace,omitempty"`
	Thought      string    `json:"thought,omitempty"`
	Segments     []Segment `json:"segments"`
	CleanText    string    `json:"cleanText"`
	DialogueText string    `json:"dialogueText"`
}

var (
	reasoningBlock = regexp.MustCompile(`(?is)<(?:think|thinking)[^>]*>(.*?)</(?:think|thinking)>`)
	stageDirection = regexp.MustCompile(`[（(].*?[）)]`)
	actionMarker   = regexp.MustCompile(`\*.*?\*`)
)

// Parse never fails: missing or unbalanced markers simply yield no trace and
// a reply without tags yields a single text segment.
func Parse(raw string, subs []Substitution) Result {
	dialogue, block, found := extractReasoning(raw)

	res := Result{
		DialogueText: dialogue,
		Segments:     Split(dialogue),
		CleanText:    Clean(dialogue, subs),
	}
	if found {
		res.Thought = block
		res.Trace = ParseTrace(block)
	}
	return res
}

// extractReasoning removes the first reasoning block from raw.
func extractReasoning(raw string) (dialogue, block string, found bool) {
	loc := reasoningBlock.FindStringSubmatchIndex(raw)
	if loc == nil {
		return strings.TrimSpace(raw), "", false
	}
	block = strings.TrimSpace(raw[loc[2]:loc[3]])
	dialogue = strings.TrimSpace(raw[:loc[0]] + raw[loc[1]:])
	return dialogue, block, true
}

// StripDirections removes (stage directions) and *action markers*.
func StripDirections(text string) string {
	text = stageDirection.ReplaceAllString(text, "")
	return actionMarker.ReplaceAllString(text, "")
}

// Clean derives the display text: tags, stage directions and action markers
// are removed until none remain, then each substitution is applied once in
// order and whitespace trimmed. A replacement may contain its own find token.
func Clean(text string, subs []Substitution) string {
	for {
		next := stripMarkup(text)
		if next == text {
			break
		}
		text = next
	}
	for _, s := range subs {
		text = s.apply(text)
	}
	return strings.TrimSpace(text)
}

// stripMarkup only ever shortens text, so the loop in Clean terminates.
func stripMarkup(text string) string {
	text = tagPattern.ReplaceAllString(text, "")
	return StripDirections(text)
}
