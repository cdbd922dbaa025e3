package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeProjectPathFlattensSeparators(t *testing.T) {
	escaped, err := EscapeProjectPath("/a/b/c")
	require.NoError(t, err)
	assert.Equal(t, "-a-b-c", escaped)
}

func TestEscapeProjectPathRejectsRelative(t *testing.T) {
	_, err := EscapeProjectPath("a/b")
	assert.Error(t, err)
}

func TestSessionFilePathRoundTrip(t *testing.T) {
	path, err := SessionFilePath("/home/iris", "/work/team-a", "11111111-1111-4111-8111-111111111111")
	require.NoError(t, err)
	assert.Equal(t, "/home/iris/projects/-work-team-a/11111111-1111-4111-8111-111111111111.jsonl", path)
}

func TestValidateTeamName(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"", true},
		{"alpha", false},
		{"alpha-beta_01@host.io", false},
		{"has/slash", true},
		{"has..dots", true},
		{"has space", true},
	}
	for _, c := range cases {
		err := ValidateTeamName(c.name)
		if c.wantErr {
			assert.Error(t, err, "name=%q", c.name)
		} else {
			assert.NoError(t, err, "name=%q", c.name)
		}
	}
}

func TestValidateTeamNameLengthLimit(t *testing.T) {
	long := make([]byte, 101)
	for i := range long {
		long[i] = 'a'
	}
	assert.Error(t, ValidateTeamName(string(long)))
}

func TestValidateSessionIDRequiresUUIDv4(t *testing.T) {
	assert.NoError(t, ValidateSessionID("11111111-1111-4111-8111-111111111111"))
	assert.Error(t, ValidateSessionID("not-a-uuid"))
	assert.Error(t, ValidateSessionID("11111111-1111-1111-1111-111111111111")) // wrong version nibble
}

func TestValidateProjectPathRejectsRelativeAndDotDot(t *testing.T) {
	assert.Error(t, ValidateProjectPath("relative/path"))
	assert.Error(t, ValidateProjectPath("/a/../b"))
}

func TestValidateProjectPathRejectsSensitivePrefix(t *testing.T) {
	assert.Error(t, ValidateProjectPath("/etc/passwd"))
	assert.Error(t, ValidateProjectPath("/sys/class"))
}

func TestValidateProjectPathAcceptsReadableDirectory(t *testing.T) {
	assert.NoError(t, ValidateProjectPath(t.TempDir()))
}

func TestValidateTimeoutBounds(t *testing.T) {
	assert.NoError(t, ValidateTimeout(-1))
	assert.NoError(t, ValidateTimeout(0))
	assert.NoError(t, ValidateTimeout(1))
	assert.NoError(t, ValidateTimeout(3_600_000))
	assert.Error(t, ValidateTimeout(3_600_001))
	assert.Error(t, ValidateTimeout(-2))
}
