package defaults_test

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/waftester/wpscout/pkg/defaults"
)

func TestVersionIsSemver(t *testing.T) {
	assert.Regexp(t, regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9]+)?$`), defaults.Version)
}

func TestUserAgentCarriesVersion(t *testing.T) {
	assert.True(t, strings.HasPrefix(defaults.UserAgent, defaults.ToolNameDisplay+"/"+defaults.Version))
	assert.Equal(t, defaults.UserAgent, defaults.UserAgentWithContext(""))
	assert.Equal(t, "WPScout/"+defaults.Version+" (consent-verify)", defaults.UserAgentWithContext("consent-verify"))
}

func TestRateTiers(t *testing.T) {
	assert.Less(t, defaults.RateSafe, defaults.RateConsentThreshold)
	assert.GreaterOrEqual(t, defaults.RateAggressive, defaults.RateConsentThreshold)
	assert.Greater(t, defaults.RateSafe, defaults.RateMin)
}

func TestCommonListsHaveNoDuplicates(t *testing.T) {
	for name, list := range map[string][]string{
		"paths":   defaults.CommonPaths,
		"plugins": defaults.CommonPlugins,
		"themes":  defaults.CommonThemes,
	} {
		seen := map[string]bool{}
		for _, v := range list {
			assert.False(t, seen[v], "%s: duplicate %q", name, v)
			seen[v] = true
		}
	}
	assert.Len(t, defaults.CommonPaths, 15)
}
