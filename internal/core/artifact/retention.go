package artifact

import (
	"slices"
	"strings"
)

// =============================================================================
// Retention Planning
// =============================================================================

// RetentionPolicy bounds how many artifact directories older than the current
// run survive cleanup.
type RetentionPolicy struct {
	// KeepPrevious is the number of prior directories to keep. Negative
	// values are treated as zero.
	KeepPrevious int
}

// CleanupPlan is the outcome of PlanCleanup.
type CleanupPlan struct {
	// Keep lists retained prefixes, current first.
	Keep []string
	// Remove lists prefixes to delete, newest to oldest.
	Remove []string
	// Skipped lists prefixes that could not be parsed and are left alone.
	Skipped []string
}

// PlanCleanup decides which artifact directories to delete.
//
// The current prefix is always kept, as are directories newer than it (a
// concurrent run may still be using them) and prefixes that do not parse as
// artifact directories. Of the older directories, the newest
// policy.KeepPrevious are kept and the rest removed.
func PlanCleanup(deploymentID, current string, existing []string, policy RetentionPolicy) CleanupPlan {
	current = strings.TrimSuffix(current, "/")
	keepPrevious := max(policy.KeepPrevious, 0)

	plan := CleanupPlan{Keep: []string{current}}
	currentDir, currentParsed := ParseArtifactDirectory(deploymentID, current)

	var older []Directory
	seen := map[string]bool{current: true}
	for _, raw := range existing {
		prefix := strings.TrimSuffix(raw, "/")
		if seen[prefix] {
			continue
		}
		seen[prefix] = true

		dir, ok := ParseArtifactDirectory(deploymentID, prefix)
		if !ok || !currentParsed {
			plan.Skipped = append(plan.Skipped, prefix)
			continue
		}
		if !dir.CreatedAt.Before(currentDir.CreatedAt) {
			plan.Keep = append(plan.Keep, prefix)
			continue
		}
		older = append(older, dir)
	}

	slices.SortFunc(older, func(a, b Directory) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	for i, dir := range older {
		if i < keepPrevious {
			plan.Keep = append(plan.Keep, dir.Prefix)
		} else {
			plan.Remove = append(plan.Remove, dir.Prefix)
		}
	}
	return plan
}
