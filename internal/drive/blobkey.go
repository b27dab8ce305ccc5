package drive

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// sanitizeProjectName lowercases and keeps only ascii letters and digits.
func sanitizeProjectName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "project"
	}
	return b.String()
}

// randomKeyToken returns a short random token that keeps keys unique per upload.
func randomKeyToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// BuildBlobKey mints {prefix}/{project}/{folder_path}/{token}_v{version}_{filename}.
func BuildBlobKey(prefix, projectName, folderPath string, version int, filename string) string {
	parts := make([]string, 0, 4)
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, sanitizeProjectName(projectName))
	if fp := strings.Trim(folderPath, "/"); fp != "" {
		parts = append(parts, fp)
	}
	parts = append(parts, fmt.Sprintf("%s_v%d_%s", randomKeyToken(), version, filename))
	return strings.Join(parts, "/")
}

// blobKeyVersion extracts the version token from a key minted by BuildBlobKey.
func blobKeyVersion(key string) (int, bool) {
	name := key[strings.LastIndex(key, "/")+1:]
	parts := strings.SplitN(name, "_", 3)
	if len(parts) != 3 || !strings.HasPrefix(parts[1], "v") {
		return 0, false
	}
	version, err := strconv.Atoi(parts[1][1:])
	if err != nil || version < 1 {
		return 0, false
	}
	return version, true
}

// BuildBlobKeyPrefix returns the key prefix shared by every blob of a project.
func BuildBlobKeyPrefix(prefix, projectName string) string {
	if p := strings.Trim(prefix, "/"); p != "" {
		return p + "/" + sanitizeProjectName(projectName) + "/"
	}
	return sanitizeProjectName(projectName) + "/"
}

// blobKeyForWrite mints a key for a planned write under the resolved folder.
func (s *Service) blobKeyForWrite(project *Project, folder ResolvedPath, version int, filename string) string {
	return BuildBlobKey(s.settings.KeyPrefix, project.Name, folder.FolderPath(), version, filename)
}
