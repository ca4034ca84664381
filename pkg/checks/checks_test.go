package checks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waftester/wpscout/pkg/check"
	"github.com/waftester/wpscout/pkg/checks/checktest"
)

func TestPhases(t *testing.T) {
	s := checktest.Settings()
	phases := Phases(s)
	require.Len(t, phases, 5)

	names := []string{Detector().Name()}
	for _, p := range phases {
		names = append(names, p.Name())
		assert.NotEmpty(t, p.Label)
		assert.Positive(t, p.EstimatedRequests, p.Name())
	}
	assert.Equal(t, Names(), names)
}

func TestUserRequests(t *testing.T) {
	assert.Equal(t, 1, userRequests(check.Settings{MaxUsers: 10}))
	assert.Equal(t, 12, userRequests(check.Settings{MaxUsers: 10, CheckAuthorIDOR: true, CheckRESTAPI: true}))
}
