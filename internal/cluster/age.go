// Copyright (c) 2025 Northbound System
package cluster

import (
	"time"

	"github.com/northbound/codewatch/internal/vcs"
)

// lastModifiedAgeDays turns a churn scan's per-file last-modified
// timestamps into the age-in-days map ImpactScore's age term needs. Files
// with no commit in the lookback window are simply absent from the map;
// callers treat a missing entry as age zero, the most conservative
// (lowest-impact) assumption.
func lastModifiedAgeDays(churn []vcs.FileChurn) map[string]int {
	now := time.Now().UTC()
	ages := make(map[string]int, len(churn))
	for _, c := range churn {
		if c.LastModifiedAt.IsZero() {
			continue
		}
		days := int(now.Sub(c.LastModifiedAt).Hours() / 24)
		if days < 0 {
			days = 0
		}
		ages[c.Path] = days
	}
	return ages
}
