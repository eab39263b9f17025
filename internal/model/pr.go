package model

import (
	"sort"
	"time"
)

// Repository identifies the base repository of a pull request.
type Repository struct {
	Name            string `json:"name"`
	Owner           string `json:"owner"`
	URL             string `json:"url"`
	Team            string `json:"team,omitempty"` // set when fetched through a team include
	TeamDescription string `json:"teamDescription,omitempty"`
}

// FullName returns "owner/name", the form used by ignore references.
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// ReviewState is the verdict of a review. COMMENTED reviews are dropped
// while fetching, so only the two deciding states reach the classifier.
type ReviewState string

const (
	ReviewCommented        ReviewState = "COMMENTED"
	ReviewChangesRequested ReviewState = "CHANGES_REQUESTED"
	ReviewApproved         ReviewState = "APPROVED"
)

// Mergeability mirrors GitHub's mergeable field.
type Mergeability string

const (
	Mergeable   Mergeability = "MERGEABLE"
	Conflicting Mergeability = "CONFLICTING"
	Unknown     Mergeability = "UNKNOWN"
)

// Review is the latest review a single reviewer left on a pull request.
type Review struct {
	Reviewer    string      `json:"reviewer"`
	State       ReviewState `json:"state"`
	SubmittedAt time.Time   `json:"submittedAt"`
	UpdatedAt   time.Time   `json:"updatedAt,omitzero"`
}

// LastActivity is UpdatedAt when present, SubmittedAt otherwise.
func (r Review) LastActivity() time.Time {
	if r.UpdatedAt.IsZero() {
		return r.SubmittedAt
	}
	return r.UpdatedAt
}

// PullRequest holds the pull request metadata fetched from the forge.
type PullRequest struct {
	BaseRepository Repository   `json:"baseRepository"`
	Author         string       `json:"author"`
	Title          string       `json:"title"`
	Body           string       `json:"body"`
	URL            string       `json:"url"`
	From           string       `json:"from"` // head (source) branch
	To             string       `json:"to"`   // base (target) branch
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt,omitzero"`
	IsDraft        bool         `json:"isDraft"`
	Mergeable      Mergeability `json:"mergeable"`
	Reviews        []Review     `json:"reviews"` // at most one per reviewer
}

// LastActivity is UpdatedAt when present, CreatedAt otherwise.
func (pr PullRequest) LastActivity() time.Time {
	if pr.UpdatedAt.IsZero() {
		return pr.CreatedAt
	}
	return pr.UpdatedAt
}

// ReviewBy returns the review left by reviewer, if any.
func (pr PullRequest) ReviewBy(reviewer string) (Review, bool) {
	for _, r := range pr.Reviews {
		if r.Reviewer == reviewer {
			return r, true
		}
	}
	return Review{}, false
}

// UpdateState describes how a pull request changed since the previous load.
type UpdateState string

const (
	NoChange UpdateState = "NO_CHANGE"
	New      UpdateState = "NEW"
	Updated  UpdateState = "UPDATED"
)

// PrioritizedPullRequest is a PullRequest ranked for display.
type PrioritizedPullRequest struct {
	PullRequest
	Priority    Priority    `json:"priority"`
	Blocking    []string    `json:"blocking,omitempty"` // URLs waiting on this PR's branch
	UpdateState UpdateState `json:"updateState"`
}

// LatestReviews folds reviews so that each reviewer keeps only their most
// recent one. COMMENTED reviews are discarded. The result is ordered by the
// time each reviewer's surviving review was made.
func LatestReviews(reviews []Review) []Review {
	kept := make([]Review, 0, len(reviews))
	for _, r := range reviews {
		if r.State != ReviewCommented {
			kept = append(kept, r)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].LastActivity().Before(kept[j].LastActivity())
	})

	index := make(map[string]int, len(kept))
	latest := make([]Review, 0, len(kept))
	for _, r := range kept {
		if i, ok := index[r.Reviewer]; ok {
			latest[i] = r
			continue
		}
		index[r.Reviewer] = len(latest)
		latest = append(latest, r)
	}
	return latest
}

// UniqueRepositories deduplicates repositories by URL. When the same
// repository was seen several times, a variant carrying team information
// wins over one without; otherwise the first occurrence is kept.
func UniqueRepositories(repos []Repository) []Repository {
	index := make(map[string]int, len(repos))
	unique := make([]Repository, 0, len(repos))
	for _, r := range repos {
		i, ok := index[r.URL]
		if !ok {
			index[r.URL] = len(unique)
			unique = append(unique, r)
			continue
		}
		if unique[i].Team == "" && r.Team != "" {
			unique[i] = r
		}
	}
	return unique
}
