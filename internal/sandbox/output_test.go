package sandbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractArtifacts_NoMarkers(t *testing.T) {
	out, artifacts := ExtractArtifacts("plain output\nline two")
	assert.Equal(t, "plain output\nline two", out)
	assert.Empty(t, artifacts)
}

func TestExtractArtifacts_SingleArtifact(t *testing.T) {
	stdout := "metrics computed\n[VISUALIZATION_BASE64_START]\naVZCT1J3MEtH\n[VISUALIZATION_BASE64_END]\ndone"
	out, artifacts := ExtractArtifacts(stdout)
	assert.Equal(t, "metrics computed\n\ndone", out)
	assert.Equal(t, []string{"aVZCT1J3MEtH"}, artifacts)
}

func TestExtractArtifacts_MultipleArtifacts(t *testing.T) {
	stdout := "[VISUALIZATION_BASE64_START]one[VISUALIZATION_BASE64_END]" +
		"middle" +
		"[VISUALIZATION_BASE64_START]two[VISUALIZATION_BASE64_END]"
	out, artifacts := ExtractArtifacts(stdout)
	assert.Equal(t, "middle", out)
	assert.Equal(t, []string{"one", "two"}, artifacts)
}

func TestExtractArtifacts_UnterminatedBlockKeptVerbatim(t *testing.T) {
	stdout := "before\n[VISUALIZATION_BASE64_START]\ntruncated-payload"
	out, artifacts := ExtractArtifacts(stdout)
	assert.Contains(t, out, "[VISUALIZATION_BASE64_START]")
	assert.Empty(t, artifacts)
}

func TestExtractArtifacts_EmptyPayloadIgnored(t *testing.T) {
	stdout := "[VISUALIZATION_BASE64_START]   [VISUALIZATION_BASE64_END]rest"
	out, artifacts := ExtractArtifacts(stdout)
	assert.Equal(t, "rest", out)
	assert.Empty(t, artifacts)
}

func TestTruncateTail(t *testing.T) {
	long := strings.Repeat("x", 100)
	got := truncateTail(long, 10)
	assert.True(t, strings.HasPrefix(got, "...(truncated)...\n"))
	assert.True(t, strings.HasSuffix(got, strings.Repeat("x", 10)))

	assert.Equal(t, "short", truncateTail("short", 10))
	assert.Equal(t, "", truncateTail("anything", 0))
}

func TestRuntimeErrorMessage(t *testing.T) {
	assert.Equal(t, "script exited with code 2", runtimeErrorMessage("", 2))
	assert.Equal(t, "NameError: name 'pd' is not defined",
		runtimeErrorMessage("NameError: name 'pd' is not defined\n", 1))
}

func TestParsePlatform(t *testing.T) {
	assert.Nil(t, parsePlatform(""))

	p := parsePlatform("linux/amd64")
	assert.Equal(t, "linux", p.OS)
	assert.Equal(t, "amd64", p.Architecture)
}
