package worktree

import (
	"fmt"
	"strings"
)

// maxSlugLen bounds the human-readable portion of a branch name.
const maxSlugLen = 40

// Slugify converts free text into a branch-safe slug: lowercase, with runs
// of non-alphanumeric characters collapsed to single hyphens.
func Slugify(text string) string {
	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	slug := strings.TrimRight(b.String(), "-")
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}
	return slug
}

// BranchName builds the branch name for a task:
// <prefix>/<taskID>-<slug> or <prefix>/<slug> when includeID is false.
// An empty slug falls back to the task ID alone.
func BranchName(prefix, taskID, title string, includeID bool) string {
	slug := Slugify(title)
	switch {
	case slug == "":
		return fmt.Sprintf("%s/%s", prefix, taskID)
	case includeID:
		return fmt.Sprintf("%s/%s-%s", prefix, taskID, slug)
	default:
		return fmt.Sprintf("%s/%s", prefix, slug)
	}
}

// Dedupe returns name if no branch with that name exists, otherwise the
// first name-N variant (starting at 2) that is free.
func (m *Manager) Dedupe(name string) string {
	if !m.BranchExists(name) {
		return name
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", name, n)
		if !m.BranchExists(candidate) {
			return candidate
		}
	}
}
