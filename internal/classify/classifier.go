// Package classify infers the single-cell library technology of a record from
// its library construction protocol text.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/JakeFAU/scqc/internal/metrics"
	"github.com/JakeFAU/scqc/internal/pipeline"
)

// Entry pairs a label with the case-insensitive regex fragments that identify it.
type Entry struct {
	Label    pipeline.TechnologyLabel
	Patterns []string
}

// DefaultTable lists the known technologies in precedence order: when text
// matches several entries, the earliest one names the method.
var DefaultTable = []Entry{
	{Label: pipeline.Tech10xV3, Patterns: []string{`10x[^.]{0,40}\bv3`, `chromium[^.]{0,60}\bv3`, `\bv3[^.]{0,40}(10x|chromium)`}},
	{Label: pipeline.Tech10xV2, Patterns: []string{`10x[^.]{0,40}\bv2`, `chromium[^.]{0,60}\bv2`, `\bv2[^.]{0,40}(10x|chromium)`}},
	{Label: pipeline.Tech10xV1, Patterns: []string{`10x[^.]{0,40}\bv1`, `chromium[^.]{0,60}\bv1`, `\bv1[^.]{0,40}(10x|chromium)`}},
	{Label: pipeline.Tech10x, Patterns: []string{`10x`, `chromium`}},
	{Label: pipeline.TechSmartSeq, Patterns: []string{`smart[- ]?seq`}},
	{Label: pipeline.TechDropSeq, Patterns: []string{`\bdrop[- ]?seq`}},
	{Label: pipeline.TechCelSeq, Patterns: []string{`cel[- ]?seq`}},
	{Label: pipeline.TechSortSeq, Patterns: []string{`sort[- ]?seq`}},
	{Label: pipeline.TechSeqWell, Patterns: []string{`seq[- ]?well`}},
	{Label: pipeline.TechBioRad, Patterns: []string{`bio[- ]?rad`, `ddseq`}},
	{Label: pipeline.TechInDrops, Patterns: []string{`indrop`}},
	{Label: pipeline.TechMarsSeq, Patterns: []string{`mars[- ]?seq`}},
	{Label: pipeline.TechTang, Patterns: []string{`tang et al`, `tang protocol`}},
	{Label: pipeline.TechSplitSeq, Patterns: []string{`split[- ]?seq`}},
	{Label: pipeline.TechMicrowell, Patterns: []string{`microwell[- ]?seq`}},
}

// Result is the classification of one protocol text.
type Result struct {
	Method         pipeline.TechnologyLabel
	Is10x          bool
	IsSmartSeqOnly bool
	// Matched lists every label whose patterns hit, in table order.
	Matched []pipeline.TechnologyLabel
}

type rule struct {
	label pipeline.TechnologyLabel
	re    *regexp.Regexp
}

// Classifier evaluates a compiled keyword table.
type Classifier struct {
	rules []rule
}

// New compiles DefaultTable.
func New() *Classifier {
	c, err := NewWithTable(DefaultTable)
	if err != nil {
		panic(err)
	}
	return c
}

// NewWithTable compiles a custom table. Table order is the precedence order.
func NewWithTable(table []Entry) (*Classifier, error) {
	rules := make([]rule, 0, len(table))
	for _, e := range table {
		if len(e.Patterns) == 0 {
			return nil, fmt.Errorf("label %s: no patterns", e.Label)
		}
		re, err := regexp.Compile("(?i)(?:" + strings.Join(e.Patterns, "|") + ")")
		if err != nil {
			return nil, fmt.Errorf("compile patterns for %s: %w", e.Label, err)
		}
		rules = append(rules, rule{label: e.Label, re: re})
	}
	return &Classifier{rules: rules}, nil
}

// Classify evaluates every label against text independently and resolves the
// method by table precedence.
func (c *Classifier) Classify(text string) Result {
	res := Result{Method: pipeline.TechUnknown}
	smartSeq := false
	for _, r := range c.rules {
		if !r.re.MatchString(text) {
			continue
		}
		res.Matched = append(res.Matched, r.label)
		if res.Method == pipeline.TechUnknown {
			res.Method = r.label
		}
		if r.label.Is10x() {
			res.Is10x = true
		}
		if r.label == pipeline.TechSmartSeq {
			smartSeq = true
		}
	}
	res.IsSmartSeqOnly = smartSeq && !res.Is10x
	return res
}

// ClassifyRecords labels records in place. Each distinct protocol text is
// classified once and the result is shared by every record carrying it. It
// returns the number of distinct texts evaluated.
func (c *Classifier) ClassifyRecords(records []pipeline.MetadataRecord) int {
	memo := make(map[string]Result)
	for i := range records {
		res, ok := memo[records[i].Protocol]
		if !ok {
			res = c.Classify(records[i].Protocol)
			memo[records[i].Protocol] = res
		}
		records[i].Method = res.Method
		records[i].Is10x = res.Is10x
		records[i].IsSmartSeq = res.IsSmartSeqOnly
		metrics.ObserveClassification(string(res.Method))
	}
	return len(memo)
}
