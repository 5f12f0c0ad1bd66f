package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionVariables(t *testing.T) {
	assert.NotEmpty(t, Version)
	assert.NotEmpty(t, BuildTime)

	if assert.NotEmpty(t, GitCommit) && GitCommit != "unknown" {
		assert.GreaterOrEqual(t, len(GitCommit), 7, "GitCommit %q should be 'unknown' or a git hash", GitCommit)
	}
}
