package finding

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spaolacci/murmur3"
)

// Evidence types.
const (
	EvidenceURL      = "url"
	EvidenceHeader   = "header"
	EvidenceBody     = "body"
	EvidenceResponse = "response"
	EvidenceOther    = "other"
)

// Evidence is the observation that backs a finding.
type Evidence struct {
	Type    string `json:"type"`
	Value   string `json:"value"`
	Context string `json:"context,omitempty"`
}

// URLEvidence returns evidence pointing at a probed URL.
func URLEvidence(url, context string) *Evidence {
	return &Evidence{Type: EvidenceURL, Value: url, Context: context}
}

// Finding is one reported observation. Findings are values: checks build
// them once and nothing downstream modifies them.
type Finding struct {
	Code           string     `json:"id"`
	Title          string     `json:"title"`
	Severity       Severity   `json:"severity"`
	Confidence     Confidence `json:"confidence"`
	Description    string     `json:"description"`
	Evidence       *Evidence  `json:"evidence,omitempty"`
	Recommendation string     `json:"recommendation"`
	References     []string   `json:"references,omitempty"`
	Component      string     `json:"affected_component,omitempty"`
}

// Validate checks the fields every finding must carry.
func (f Finding) Validate() error {
	if strings.TrimSpace(f.Code) == "" {
		return ErrMissingCode
	}
	if !f.Severity.IsValid() {
		return fmt.Errorf("%s: %w: %q", f.Code, ErrInvalidSeverity, f.Severity)
	}
	if !f.Confidence.IsValid() {
		return fmt.Errorf("%s: %w: %q", f.Code, ErrInvalidConfidence, f.Confidence)
	}
	return nil
}

// Clone returns a deep copy, so a caller holding the copy cannot reach the
// original's evidence or references.
func (f Finding) Clone() Finding {
	if f.Evidence != nil {
		ev := *f.Evidence
		f.Evidence = &ev
	}
	f.References = slices.Clone(f.References)
	return f
}

// Fingerprint identifies the condition a finding reports, independent of
// its wording. Two findings with the same code, component and evidence
// value share a fingerprint.
func (f Finding) Fingerprint() string {
	var b strings.Builder
	b.WriteString(f.Code)
	b.WriteByte(0)
	b.WriteString(f.Component)
	b.WriteByte(0)
	if f.Evidence != nil {
		b.WriteString(f.Evidence.Type)
		b.WriteByte(0)
		b.WriteString(f.Evidence.Value)
	} else {
		b.WriteString(f.Title)
	}
	h1, h2 := murmur3.Sum128([]byte(b.String()))
	return fmt.Sprintf("%016x%016x", h1, h2)
}

// Dedupe drops findings whose fingerprint was already seen, keeping the
// first occurrence and the original order.
func Dedupe(findings []Finding) []Finding {
	seen := make(map[string]struct{}, len(findings))
	out := make([]Finding, 0, len(findings))
	for _, f := range findings {
		fp := f.Fingerprint()
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		out = append(out, f)
	}
	return out
}

// SortBySeverity orders findings most severe first, then by code. The sort
// is stable so findings sharing both keep their emission order.
func SortBySeverity(findings []Finding) {
	slices.SortStableFunc(findings, func(a, b Finding) int {
		if d := b.Severity.Score() - a.Severity.Score(); d != 0 {
			return d
		}
		return strings.Compare(a.Code, b.Code)
	})
}

// Truncate shortens s to at most max bytes, appending "..." when cut.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }
