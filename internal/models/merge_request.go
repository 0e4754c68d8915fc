package models

import "time"

// MergeRequest is one open merge request as reported by the GitLab API.
type MergeRequest struct {
	// ID is the instance-wide merge request id
	ID int64
	// IID is the project-scoped id shown in the UI (!N)
	IID int64
	// Title is the merge request title
	Title string
	// Author is the display name of the author
	Author string
	// SourceBranch is the branch being merged
	SourceBranch string
	// TargetBranch is the branch being merged into
	TargetBranch string
	// WebURL links to the merge request page
	WebURL string
	// UpdatedAt is the last activity timestamp
	UpdatedAt time.Time
}

// FilterByTargetBranch returns the merge requests targeting branch, in input
// order. Matching is exact and case-sensitive. An empty branch returns the
// input unchanged.
func FilterByTargetBranch(mrs []MergeRequest, branch string) []MergeRequest {
	if branch == "" {
		return mrs
	}
	var out []MergeRequest
	for _, mr := range mrs {
		if mr.TargetBranch == branch {
			out = append(out, mr)
		}
	}
	return out
}

// FilterByMinDwell returns the merge requests that have been idle for at
// least minDwell as of now, in input order. A non-positive minDwell returns
// the input unchanged.
func FilterByMinDwell(mrs []MergeRequest, minDwell time.Duration, now time.Time) []MergeRequest {
	if minDwell <= 0 {
		return mrs
	}
	var out []MergeRequest
	for _, mr := range mrs {
		if now.Sub(mr.UpdatedAt) >= minDwell {
			out = append(out, mr)
		}
	}
	return out
}
