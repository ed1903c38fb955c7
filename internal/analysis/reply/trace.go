package reply

import (
	"regexp"
	"strings"
)

// StepKind labels one reasoning step. Kinds outside the ReAct vocabulary are
// kept as the model wrote them.
type StepKind string

const (
	Observation StepKind = "Observation"
	Thought     StepKind = "Thought"
	Memory      StepKind = "Memory"
	Plan        StepKind = "Plan"
	Act         StepKind = "Act"
)

var knownKinds = []StepKind{Observation, Thought, Memory, Plan, Act}

// Known reports whether k is one of the ReAct step kinds.
func (k StepKind) Known() bool {
	for _, known := range knownKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Step is a single labeled line group of the reasoning block.
type Step struct {
	Kind    StepKind `json:"kind"`
	Content string   `json:"content"`
}

// Trace is the ordered reasoning of one reply.
type Trace []Step

// Empty reports whether the reply carried no usable reasoning.
func (t Trace) Empty() bool { return len(t) == 0 }

var stepLine = regexp.MustCompile(`^([A-Za-z]+)\s*[:：]\s*(.*)$`)

// ParseTrace scans the inner text of a reasoning block line by line.
// A "Label: text" line opens a step, other lines continue the open step and
// anything before the first label is dropped.
func ParseTrace(block string) Trace {
	var (
		trace   Trace
		current *Step
	)

	for _, raw := range strings.Split(block, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if m := stepLine.FindStringSubmatch(line); m != nil {
			if current != nil {
				trace = append(trace, *current)
			}
			current = &Step{Kind: canonicalKind(m[1]), Content: strings.TrimSpace(m[2])}
			continue
		}

		if current == nil {
			continue
		}
		if current.Content == "" {
			current.Content = line
		} else {
			current.Content += "\n" + line
		}
	}

	if current != nil {
		trace = append(trace, *current)
	}
	return trace
}

func canonicalKind(label string) StepKind {
	for _, k := range knownKinds {
		if strings.EqualFold(label, string(k)) {
			return k
		}
	}
	return StepKind(label)
}
