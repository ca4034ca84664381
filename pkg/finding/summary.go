package finding

// Summary counts findings per severity.
type Summary struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
	Total    int `json:"total"`
}

// Summarize buckets findings by severity. Unknown severities count toward
// Total only.
func Summarize(findings []Finding) Summary {
	var s Summary
	for _, f := range findings {
		s.Add(f.Severity)
	}
	return s
}

// Add counts one finding of severity sev.
func (s *Summary) Add(sev Severity) {
	s.Total++
	switch sev {
	case Critical:
		s.Critical++
	case High:
		s.High++
	case Medium:
		s.Medium++
	case Low:
		s.Low++
	case Info:
		s.Info++
	}
}

// Count returns the bucket for sev.
func (s Summary) Count(sev Severity) int {
	switch sev {
	case Critical:
		return s.Critical
	case High:
		return s.High
	case Medium:
		return s.Medium
	case Low:
		return s.Low
	case Info:
		return s.Info
	}
	return 0
}

// Highest returns the most severe non-empty bucket, or "" when empty.
func (s Summary) Highest() Severity {
	for _, sev := range Severities {
		if s.Count(sev) > 0 {
			return sev
		}
	}
	return ""
}
