package emotion

// Tally 统计一次回复中出现过的表情标签，并记住首次出现的顺序。
type Tally struct {
	order  []Code
	counts map[Code]int
}

// NewTally 返回空计数器。
func NewTally() *Tally {
	return &Tally{counts: make(map[Code]int)}
}

// Add 记录一次标签出现。
func (t *Tally) Add(c Code) {
	if t.counts == nil {
		t.counts = make(map[Code]int)
	}
	if _, seen := t.counts[c]; !seen {
		t.order = append(t.order, c)
	}
	t.counts[c]++
}

// Count 返回某个代码的出现次数。
func (t *Tally) Count(c Code) int {
	return t.counts[c]
}

// Len 返回记录的标签总数。
func (t *Tally) Len() int {
	total := 0
	for _, n := range t.counts {
		total += n
	}
	return total
}

// Counts 按首次出现顺序返回 (代码, 次数)。
func (t *Tally) Counts() []Count {
	out := make([]Count, 0, len(t.order))
	for _, c := range t.order {
		out = append(out, Count{Code: c, N: t.counts[c]})
	}
	return out
}

// Count 是 Tally 的一行。
type Count struct {
	Code Code `json:"code"`
	N    int  `json:"n"`
}

// Persistent 选出回复结束后的常驻表情：出现次数最多者胜出，
// 只有严格大于才会替换领先者，因此并列时先出现的代码保留；
// idle 与 thinking 不计入，没有可计数标签时返回 Default。
func (t *Tally) Persistent() Code {
	best, top := Default, 0
	for _, c := range t.order {
		if c.Sentinel() {
			continue
		}
		if n := t.counts[c]; n > top {
			best, top = c, n
		}
	}
	return best
}
