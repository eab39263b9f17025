// Package classify ranks pull requests by the action they need from the
// viewer.
package classify

import (
	"sort"

	"gitnext/internal/model"
)

// BlockingMap indexes, per repository and branch, the pull requests that
// target that branch. A pull request whose source branch is a key here has
// other work stacked on top of it.
type BlockingMap map[string][]string

// Key derives the lookup key for a branch inside a repository.
//
// Branch names are assumed unique among open pull requests of a repository;
// two open pull requests with the same source branch share a key.
func Key(repo model.Repository, branch string) string {
	return repo.URL + "#" + branch
}

// BuildBlockingMap records every pull request under the branch it targets.
func BuildBlockingMap(prs []model.PullRequest) BlockingMap {
	blocking := make(BlockingMap)
	for _, pr := range prs {
		key := Key(pr.BaseRepository, pr.To)
		blocking[key] = append(blocking[key], pr.URL)
	}
	return blocking
}

// Waiting returns the pull requests that target pr's source branch,
// excluding pr itself.
func (b BlockingMap) Waiting(pr model.PullRequest) []string {
	var waiting []string
	for _, url := range b[Key(pr.BaseRepository, pr.From)] {
		if url != pr.URL {
			waiting = append(waiting, url)
		}
	}
	return waiting
}

// Classify computes the priority of pr for viewer.
func Classify(pr model.PullRequest, viewer string, blocking BlockingMap) model.Priority {
	if len(blocking.Waiting(pr)) > 0 {
		return model.BlockingOtherWork
	}

	if pr.Author == viewer {
		return classifyOwn(pr)
	}

	if len(pr.Reviews) == 0 {
		return model.NoReviews
	}
	own, reviewed := pr.ReviewBy(viewer)
	if !reviewed {
		return model.MissingReview
	}
	if own.State == model.ReviewChangesRequested {
		return model.RejectedByViewer
	}
	return model.NoActionNeeded
}

func classifyOwn(pr model.PullRequest) model.Priority {
	if len(pr.Reviews) == 0 {
		return model.PendingOwn
	}

	approved, rejected := true, false
	for _, r := range pr.Reviews {
		if r.State != model.ReviewApproved {
			approved = false
		}
		if r.State == model.ReviewChangesRequested {
			rejected = true
		}
	}
	switch {
	case approved:
		return model.ApprovedOwn
	case rejected, pr.Mergeable != model.Mergeable:
		return model.RejectedOwn
	default:
		return model.PendingOwn
	}
}

// Sort orders prs by descending priority. Equal priorities keep their
// input order.
func Sort(prs []model.PrioritizedPullRequest) {
	sort.SliceStable(prs, func(i, j int) bool {
		return prs[i].Priority > prs[j].Priority
	})
}
