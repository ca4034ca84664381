// Package checks assembles the detector and the fan-out phases of a scan.
package checks

import (
	"github.com/waftester/wpscout/pkg/check"
	"github.com/waftester/wpscout/pkg/checks/files"
	"github.com/waftester/wpscout/pkg/checks/fingerprint"
	"github.com/waftester/wpscout/pkg/checks/headers"
	"github.com/waftester/wpscout/pkg/checks/misconfig"
	"github.com/waftester/wpscout/pkg/checks/plugins"
	"github.com/waftester/wpscout/pkg/checks/users"
)

// Detector returns the mandatory WordPress detector.
func Detector() check.Detector { return fingerprint.New() }

// Phases returns the fan-out phases with request estimates derived from s.
func Phases(s check.Settings) []check.PhaseDescriptor {
	return []check.PhaseDescriptor{
		{Label: "Sensitive files", Check: files.New(), EstimatedRequests: len(files.Paths(s.CommonPaths))},
		{Label: "Plugins and themes", Check: plugins.New(), EstimatedRequests: 1 + 2*(s.MaxPlugins+s.MaxThemes)},
		{Label: "User enumeration", Check: users.New(), EstimatedRequests: userRequests(s)},
		{Label: "Security headers", Check: headers.New(), EstimatedRequests: 1},
		{Label: "Configuration", Check: misconfig.New(), EstimatedRequests: 4 + len(misconfig.Directories)},
	}
}

func userRequests(s check.Settings) int {
	n := 1
	if s.CheckAuthorIDOR {
		n += s.MaxUsers
	}
	if s.CheckRESTAPI {
		n++
	}
	return n
}

// Names lists the phase names in registration order, detector first.
func Names() []string {
	return []string{
		fingerprint.Name, files.Name, plugins.Name, users.Name, headers.Name, misconfig.Name,
	}
}
