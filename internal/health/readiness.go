// internal/health/readiness.go
package health

import "fmt"

// CriticalTables must be orphan-free before enforcement can go strict.
var CriticalTables = []string{"users", "workspaces", "projects", "tasks"}

// RecentWarningThreshold is the number of warnings in the last 24 hours
// above which strict mode is blocked.
const RecentWarningThreshold = 5

type Readiness struct {
	CanGoStrict bool     `json:"can_go_strict"`
	Blockers    []string `json:"blockers"`
}

// ComputeReadiness combines orphan counts and recent warning stats into a
// "can we go strict" verdict. It is pure: identical inputs always yield an
// identical verdict and blocker list.
func ComputeReadiness(orphanCounts map[string]int64, recent Stats) Readiness {
	var blockers []string

	for _, table := range CriticalTables {
		n, ok := orphanCounts[table]
		if !ok {
			continue
		}
		switch {
		case n > 0:
			blockers = append(blockers, fmt.Sprintf("table %s has %d rows with no tenant", table, n))
		case n < 0:
			blockers = append(blockers, fmt.Sprintf("table %s could not be scanned", table))
		}
	}

	if recent.Total > RecentWarningThreshold {
		blockers = append(blockers, fmt.Sprintf("%d tenancy warnings in the last 24h (threshold %d)",
			recent.Total, RecentWarningThreshold))
	}

	return Readiness{CanGoStrict: len(blockers) == 0, Blockers: blockers}
}
