package github

import (
	"encoding/json"
	"regexp"
	"strings"

	"gitnext/internal/config"
)

const pullRequestFragment = `
fragment pullrequest on PullRequest {
  author { login }
  title
  bodyText
  url
  baseRepository { name url owner { login } }
  headRefName
  baseRefName
  createdAt
  updatedAt
  isDraft
  mergeable
  latestReviews(first: 50) {
    totalCount
    nodes { author { login } state submittedAt updatedAt }
  }
}`

const repoFragment = `
fragment repo on Repository {
  name
  url
  isArchived
  viewerPermission
  owner { login }
  pullRequests(first: 50, states: OPEN) {
    totalCount
    nodes { ...pullrequest }
  }
}`

const teamFragment = `
fragment team on Team {
  name
  description
  repositories(first: 50) {
    totalCount
    nodes { ...repo }
  }
}`

const userQuery = `
query($endCursor: String) {
  user(login: {{USER}}) {
    pullRequests(first: 50, states: OPEN) {
      totalCount
      nodes { ...pullrequest }
    }
    repositories(first: 25, after: $endCursor) {
      totalCount
      pageInfo { hasNextPage endCursor }
      nodes { ...repo }
    }
  }
}`

const teamSubquery = `
  {{KEY}}: organization(login: {{ORG}}) {
    team(slug: {{TEAM}}) { ...team }
  }`

const repoSubquery = `
  {{KEY}}: organization(login: {{ORG}}) {
    repository(name: {{REPO}}) { ...repo }
  }`

// Kind distinguishes the two query shapes.
type Kind int

const (
	UserKind Kind = iota
	OrganizationKind
)

// Query is a GraphQL document for one configured source plus what is needed
// to post-process its response.
type Query struct {
	Kind      Kind
	Text      string
	Paginated bool
	Ignore    []config.Reference // source ignores plus global ignores
}

var nonWord = regexp.MustCompile(`\W`)

// keyOf turns a team or repository name into a GraphQL alias suffix.
func keyOf(name string) string {
	return nonWord.ReplaceAllString(name, "")
}

// literal quotes s as a GraphQL string.
func literal(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// BuildUserQuery builds the query for a user source. The __self__ username
// resolves to viewer.
func BuildUserQuery(viewer string, source config.Source, globalIgnore []config.Reference) Query {
	user := source.Username
	if user == config.SelfUsername {
		user = viewer
	}
	text := strings.NewReplacer("{{USER}}", literal(user)).Replace(userQuery)
	return Query{
		Kind:      UserKind,
		Text:      strings.Join([]string{text, repoFragment, pullRequestFragment}, "\n"),
		Paginated: true,
		Ignore:    append(append([]config.Reference{}, source.Ignore...), globalIgnore...),
	}
}

// BuildOrgQuery builds the query for an organization source: one aliased
// subquery per included team and repository.
func BuildOrgQuery(source config.Source, globalIgnore []config.Reference) Query {
	var b strings.Builder
	b.WriteString("query {")
	hasTeam, hasRepo := false, false
	for _, ref := range source.Include {
		if ref.Team == "" {
			continue
		}
		hasTeam, hasRepo = true, true
		b.WriteString(strings.NewReplacer(
			"{{KEY}}", "team_"+keyOf(ref.Team),
			"{{ORG}}", literal(source.Organization),
			"{{TEAM}}", literal(ref.Team),
		).Replace(teamSubquery))
	}
	for _, ref := range source.Include {
		if ref.Repo == "" {
			continue
		}
		hasRepo = true
		b.WriteString(strings.NewReplacer(
			"{{KEY}}", "repo_"+keyOf(ref.Repo),
			"{{ORG}}", literal(source.Organization),
			"{{REPO}}", literal(ref.Repo),
		).Replace(repoSubquery))
	}
	b.WriteString("\n}")
	if hasTeam {
		b.WriteString(teamFragment)
	}
	if hasRepo {
		b.WriteString(repoFragment)
		b.WriteString(pullRequestFragment)
	}

	return Query{
		Kind:   OrganizationKind,
		Text:   b.String(),
		Ignore: append(append([]config.Reference{}, source.Ignore...), globalIgnore...),
	}
}
