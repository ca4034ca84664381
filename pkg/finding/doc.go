// Package finding defines the immutable record a check emits for each
// security-relevant observation, plus severity bucketing and a stable
// fingerprint used to deduplicate findings across phases and scans.
//
// Usage:
//
//	f := finding.Finding{
//	    Code:           "WPS-030",
//	    Title:          "WordPress Configuration File Exposed",
//	    Severity:       finding.Critical,
//	    Confidence:     finding.ConfidenceHigh,
//	    Evidence:       finding.URLEvidence(u, "HTTP 200"),
//	    Recommendation: "Block access to wp-config.php",
//	}
package finding
