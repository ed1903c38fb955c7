package reply

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/zhouzirui/chobits/backend/internal/analysis/emotion"
)

// SegmentKind distinguishes playback units.
type SegmentKind uint8

const (
	SegmentText SegmentKind = iota + 1
	SegmentEmotion
)

func (k SegmentKind) String() string {
	switch k {
	case SegmentText:
		return "text"
	case SegmentEmotion:
		return "emotion"
	default:
		return fmt.Sprintf("SegmentKind(%d)", uint8(k))
	}
}

func (k SegmentKind) MarshalText() ([]byte, error) {
	switch k {
	case SegmentText, SegmentEmotion:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("reply: cannot marshal %s", k)
	}
}

func (k *SegmentKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "text":
		*k = SegmentText
	case "emotion":
		*k = SegmentEmotion
	default:
		return fmt.Errorf("reply: unknown segment kind %q", b)
	}
	return nil
}

// Segment is one atomic unit of playback: text to reveal or speak, or an
// emotion tag to apply.
type Segment struct {
	Kind SegmentKind  `json:"kind"`
	Text string       `json:"text,omitempty"`
	Code emotion.Code `json:"code,omitempty"`
}

// Text builds a text segment. The text is kept verbatim.
func Text(s string) Segment {
	return Segment{Kind: SegmentText, Text: s}
}

// EmotionTag builds an emotion segment. An empty code is a construction bug.
func EmotionTag(code emotion.Code) Segment {
	if code == "" {
		panic("reply: emotion segment with empty code")
	}
	return Segment{Kind: SegmentEmotion, Code: code}
}

// String returns the segment's textual form in the dialogue.
func (s Segment) String() string {
	if s.Kind == SegmentEmotion {
		return s.Code.Tag()
	}
	return s.Text
}

// Content is the trimmed text of a text segment.
func (s Segment) Content() string {
	return strings.TrimSpace(s.Text)
}

var tagPattern = regexp.MustCompile(`\{\{.+?\}\}`)

// Split lexes dialogue text into text and emotion-tag segments in source
// order. Empty text between adjacent tags is dropped.
func Split(dialogue string) []Segment {
	var segments []Segment

	appendText := func(s string) {
		if s == "" {
			return
		}
		if n := len(segments); n > 0 && segments[n-1].Kind == SegmentText {
			segments[n-1].Text += s
			return
		}
		segments = append(segments, Text(s))
	}

	last := 0
	for _, loc := range tagPattern.FindAllStringIndex(dialogue, -1) {
		appendText(dialogue[last:loc[0]])

		tag := dialogue[loc[0]:loc[1]]
		if code := emotion.Normalize(tag); code != "" {
			segments = append(segments, EmotionTag(code))
		} else {
			appendText(tag)
		}
		last = loc[1]
	}
	appendText(dialogue[last:])

	return segments
}

// Join concatenates the textual form of segments.
func Join(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.String())
	}
	return b.String()
}
