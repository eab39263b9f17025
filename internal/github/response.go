package github

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"gitnext/internal/config"
	"gitnext/internal/model"
)

type owner struct {
	Login string `json:"login"`
}

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type wireReview struct {
	Author      owner      `json:"author"`
	State       string     `json:"state"`
	SubmittedAt time.Time  `json:"submittedAt"`
	UpdatedAt   *time.Time `json:"updatedAt"`
}

type wirePullRequest struct {
	Author         owner  `json:"author"`
	Title          string `json:"title"`
	BodyText       string `json:"bodyText"`
	URL            string `json:"url"`
	BaseRepository struct {
		Name  string `json:"name"`
		URL   string `json:"url"`
		Owner owner  `json:"owner"`
	} `json:"baseRepository"`
	HeadRefName   string     `json:"headRefName"`
	BaseRefName   string     `json:"baseRefName"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     *time.Time `json:"updatedAt"`
	IsDraft       bool       `json:"isDraft"`
	Mergeable     string     `json:"mergeable"`
	LatestReviews struct {
		Nodes []wireReview `json:"nodes"`
	} `json:"latestReviews"`
}

type wireRepository struct {
	Name             string `json:"name"`
	URL              string `json:"url"`
	Owner            owner  `json:"owner"`
	IsArchived       bool   `json:"isArchived"`
	ViewerPermission string `json:"viewerPermission"`
	PullRequests     struct {
		Nodes []wirePullRequest `json:"nodes"`
	} `json:"pullRequests"`
}

type wireTeam struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Repositories struct {
		Nodes []wireRepository `json:"nodes"`
	} `json:"repositories"`
}

type userData struct {
	User struct {
		PullRequests struct {
			Nodes []wirePullRequest `json:"nodes"`
		} `json:"pullRequests"`
		Repositories struct {
			PageInfo pageInfo         `json:"pageInfo"`
			Nodes    []wireRepository `json:"nodes"`
		} `json:"repositories"`
	} `json:"user"`
}

type orgEntry struct {
	Team       *wireTeam       `json:"team"`
	Repository *wireRepository `json:"repository"`
}

// writePermissions are the repository permissions that make open pull
// requests in a user's repositories relevant to them.
var writePermissions = map[string]bool{"ADMIN": true, "WRITE": true, "MAINTAIN": true}

func userPageInfo(data json.RawMessage) (pageInfo, error) {
	var page userData
	if err := json.Unmarshal(data, &page); err != nil {
		return pageInfo{}, fmt.Errorf("github: decoding user page: %w", err)
	}
	return page.User.Repositories.PageInfo, nil
}

func processUserPages(pages []json.RawMessage, ignore []config.Reference) ([]model.PullRequest, error) {
	var prs []model.PullRequest
	for _, raw := range pages {
		var page userData
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("github: decoding user page: %w", err)
		}
		var pagePRs []model.PullRequest
		for _, pr := range page.User.PullRequests.Nodes {
			pagePRs = append(pagePRs, convertPullRequest(pr))
		}
		for _, repo := range page.User.Repositories.Nodes {
			if repo.IsArchived || !writePermissions[repo.ViewerPermission] {
				continue
			}
			pagePRs = append(pagePRs, convertRepository(repo, nil)...)
		}
		prs = append(prs, uniqueByURL(pagePRs)...)
	}
	return filterIgnored(prs, ignore), nil
}

func processOrgPage(raw json.RawMessage, ignore []config.Reference) ([]model.PullRequest, error) {
	var entries map[string]orgEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("github: decoding organization page: %w", err)
	}

	// Aliases come back as a JSON object; walk them in a stable order.
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var prs []model.PullRequest
	for _, key := range keys {
		entry := entries[key]
		switch {
		case strings.HasPrefix(key, "team_"):
			if entry.Team == nil {
				return nil, fmt.Errorf("github: team %q not found", strings.TrimPrefix(key, "team_"))
			}
			for _, repo := range entry.Team.Repositories.Nodes {
				if repo.IsArchived {
					continue
				}
				prs = append(prs, convertRepository(repo, entry.Team)...)
			}
		case strings.HasPrefix(key, "repo_"):
			if entry.Repository == nil {
				return nil, fmt.Errorf("github: repository %q not found", strings.TrimPrefix(key, "repo_"))
			}
			prs = append(prs, convertRepository(*entry.Repository, nil)...)
		default:
			return nil, fmt.Errorf("github: unknown data in key %q", key)
		}
	}
	return filterIgnored(prs, ignore), nil
}

func convertRepository(repo wireRepository, team *wireTeam) []model.PullRequest {
	prs := make([]model.PullRequest, 0, len(repo.PullRequests.Nodes))
	for _, node := range repo.PullRequests.Nodes {
		pr := convertPullRequest(node)
		if team != nil {
			pr.BaseRepository.Team = team.Name
			pr.BaseRepository.TeamDescription = team.Description
		}
		prs = append(prs, pr)
	}
	return prs
}

func convertPullRequest(pr wirePullRequest) model.PullRequest {
	reviews := make([]model.Review, 0, len(pr.LatestReviews.Nodes))
	for _, r := range pr.LatestReviews.Nodes {
		review := model.Review{
			Reviewer:    r.Author.Login,
			State:       model.ReviewState(r.State),
			SubmittedAt: r.SubmittedAt,
		}
		if r.UpdatedAt != nil {
			review.UpdatedAt = *r.UpdatedAt
		}
		reviews = append(reviews, review)
	}

	converted := model.PullRequest{
		BaseRepository: model.Repository{
			Name:  pr.BaseRepository.Name,
			Owner: pr.BaseRepository.Owner.Login,
			URL:   pr.BaseRepository.URL,
		},
		Author:    pr.Author.Login,
		Title:     stripEmoji(pr.Title),
		Body:      stripEmoji(pr.BodyText),
		URL:       pr.URL,
		From:      pr.HeadRefName,
		To:        pr.BaseRefName,
		CreatedAt: pr.CreatedAt,
		IsDraft:   pr.IsDraft,
		Mergeable: model.Mergeability(pr.Mergeable),
		Reviews:   model.LatestReviews(reviews),
	}
	if pr.UpdatedAt != nil {
		converted.UpdatedAt = *pr.UpdatedAt
	}
	return converted
}

// filterIgnored drops pull requests from ignored repositories ("owner/name")
// and by ignored authors.
func filterIgnored(prs []model.PullRequest, ignore []config.Reference) []model.PullRequest {
	if len(ignore) == 0 {
		return prs
	}
	kept := prs[:0]
	for _, pr := range prs {
		if !ignored(pr, ignore) {
			kept = append(kept, pr)
		}
	}
	return kept
}

func ignored(pr model.PullRequest, ignore []config.Reference) bool {
	for _, ref := range ignore {
		if ref.Repo != "" && ref.Repo == pr.BaseRepository.FullName() {
			return true
		}
		if ref.Username != "" && ref.Username == pr.Author {
			return true
		}
	}
	return false
}

func uniqueByURL(prs []model.PullRequest) []model.PullRequest {
	seen := make(map[string]bool, len(prs))
	unique := prs[:0]
	for _, pr := range prs {
		if seen[pr.URL] {
			continue
		}
		seen[pr.URL] = true
		unique = append(unique, pr)
	}
	return unique
}

// stripEmoji drops pictographs along with the joiners, variation selectors
// and modifiers that build emoji sequences. Surrounding text is untouched.
func stripEmoji(s string) string {
	return strings.Map(func(r rune) rune {
		if isEmoji(r) {
			return -1
		}
		return r
	}, s)
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF: // pictographs, emoticons, flags, skin tones
		return true
	case r >= 0x2600 && r <= 0x27BF: // symbols and dingbats
		return true
	case r >= 0x2B05 && r <= 0x2B07, r == 0x2B1B, r == 0x2B1C, r == 0x2B50, r == 0x2B55:
		return true
	case r == 0x231A, r == 0x231B, r >= 0x23E9 && r <= 0x23FA:
		return true
	case r == 0x200D, r == 0x20E3, r >= 0xFE00 && r <= 0xFE0F:
		return true
	case r >= 0xE0020 && r <= 0xE007F: // tag sequences
		return true
	case r == 0x3030, r == 0x303D, r == 0x3297, r == 0x3299:
		return true
	}
	return false
}
