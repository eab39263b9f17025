package pipeline

import (
	"gitnext/internal/classify"
	"gitnext/internal/model"
)

// Prioritize merges user and organization results, drops drafts and
// duplicates (first occurrence wins, user results first), marks what changed
// since previous, and ranks the rest for viewer.
func Prioritize(viewer string, previous []model.PrioritizedPullRequest, userPRs, orgPRs []model.PullRequest) []model.PrioritizedPullRequest {
	before := make(map[string]model.PrioritizedPullRequest, len(previous))
	for _, pr := range previous {
		before[pr.URL] = pr
	}

	all := make([]model.PullRequest, 0, len(userPRs)+len(orgPRs))
	all = append(all, userPRs...)
	all = append(all, orgPRs...)

	seen := make(map[string]bool, len(all))
	unique := make([]model.PullRequest, 0, len(all))
	repos := make([]model.Repository, 0, len(all))
	for _, pr := range all {
		if pr.IsDraft || seen[pr.URL] {
			continue
		}
		seen[pr.URL] = true
		unique = append(unique, pr)
		repos = append(repos, pr.BaseRepository)
	}

	canonical := make(map[string]model.Repository)
	for _, repo := range model.UniqueRepositories(repos) {
		canonical[repo.URL] = repo
	}

	blocking := classify.BuildBlockingMap(unique)
	prioritized := make([]model.PrioritizedPullRequest, 0, len(unique))
	for _, pr := range unique {
		pr.BaseRepository = canonical[pr.BaseRepository.URL]
		prioritized = append(prioritized, model.PrioritizedPullRequest{
			PullRequest: pr,
			Priority:    classify.Classify(pr, viewer, blocking),
			Blocking:    blocking.Waiting(pr),
			UpdateState: updateState(before, pr),
		})
	}
	classify.Sort(prioritized)
	return prioritized
}

func updateState(before map[string]model.PrioritizedPullRequest, pr model.PullRequest) model.UpdateState {
	previous, ok := before[pr.URL]
	switch {
	case !ok:
		return model.New
	case !previous.UpdatedAt.Equal(pr.UpdatedAt):
		return model.Updated
	default:
		return model.NoChange
	}
}
