package drive

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildBlobKey(t *testing.T) {
	key := BuildBlobKey("projects", "My Project #1", "docs/2026", 3, "report final.pdf")
	require.Regexp(t, regexp.MustCompile(`^projects/myproject1/docs/2026/[0-9a-f]{12}_v3_report final\.pdf$`), key)

	root := BuildBlobKey("/projects/", "!!!", "", 1, "a.txt")
	require.Regexp(t, regexp.MustCompile(`^projects/project/[0-9a-f]{12}_v1_a\.txt$`), root)

	require.NotEqual(t, BuildBlobKey("p", "x", "", 1, "a"), BuildBlobKey("p", "x", "", 1, "a"))
	require.Equal(t, "projects/myproject1/", BuildBlobKeyPrefix("projects", "My Project #1"))
}

func TestSanitizeProjectName(t *testing.T) {
	require.Equal(t, "abc123", sanitizeProjectName("ABC-123"))
	require.Equal(t, "project", sanitizeProjectName("日本"))
}

func TestBlobKeyVersion(t *testing.T) {
	version, ok := blobKeyVersion(BuildBlobKey("projects", "Docs", "a/b", 7, "x_v2_y.txt"))
	require.True(t, ok)
	require.Equal(t, 7, version)

	for _, key := range []string{"", "projects/docs/a.txt", "projects/docs/abc_vx_a.txt", "projects/docs/abc_v0_a.txt"} {
		_, ok := blobKeyVersion(key)
		require.False(t, ok, key)
	}
}
