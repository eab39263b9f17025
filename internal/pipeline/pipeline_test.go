package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitnext/internal/config"
	"gitnext/internal/forge"
	"gitnext/internal/github"
	"gitnext/internal/model"
	"gitnext/internal/protocol"
	"gitnext/internal/store"
)

type fakeConfig struct {
	created bool
	cfg     *config.Config
	err     error
}

func (f *fakeConfig) EnsureDefault() (bool, error) { return f.created, nil }
func (f *fakeConfig) Load() (*config.Config, error) { return f.cfg, f.err }

type fakeForge struct {
	login    string
	whoErr   error
	tokenErr error
}

func (f *fakeForge) Whoami(context.Context) (forge.Identity, error) {
	return forge.Identity{Name: f.login}, f.whoErr
}

func (f *fakeForge) AuthToken(context.Context) (forge.Token, error) {
	return forge.Token{Value: "token"}, f.tokenErr
}

// fakeFetcher answers by query kind. User queries are told apart by the
// login they contain.
type fakeFetcher struct {
	mu      sync.Mutex
	user    map[string][]model.PullRequest
	org     []model.PullRequest
	err     error
	queries []github.Query
}

func (f *fakeFetcher) Fetch(ctx context.Context, token string, q github.Query) ([]model.PullRequest, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if q.Kind == github.OrganizationKind {
		return f.org, nil
	}
	for login, prs := range f.user {
		if strings.Contains(q.Text, `"`+login+`"`) {
			return prs, nil
		}
	}
	return nil, nil
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

var repo = model.Repository{Name: "api", Owner: "acme", URL: "https://github.com/acme/api"}

func pullRequest(url, author string) model.PullRequest {
	return model.PullRequest{
		BaseRepository: repo,
		Author:         author,
		URL:            url,
		From:           "branch-" + url,
		To:             "main",
		CreatedAt:      t0,
		UpdatedAt:      t0,
		Mergeable:      model.Mergeable,
	}
}

func selfConfig() *config.Config {
	return &config.Config{
		Version: config.Version,
		Sources: []config.Source{{Username: config.SelfUsername}},
	}
}

func collect(t *testing.T, p *Pipeline) []protocol.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var events []protocol.Message
	for m := range p.Run(ctx) {
		events = append(events, m)
	}
	require.NoError(t, ctx.Err(), "pipeline did not finish")
	return events
}

func types(events []protocol.Message) []protocol.Type {
	out := make([]protocol.Type, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func TestRunEmitsPhasesInOrder(t *testing.T) {
	fetcher := &fakeFetcher{user: map[string][]model.PullRequest{
		"me": {pullRequest("u/1", "bob")},
	}}
	p := New(&fakeConfig{created: true, cfg: selfConfig()}, &fakeForge{login: "me"}, &fakeForge{},
		fetcher, store.NewMemory(), zaptest.NewLogger(t))

	events := collect(t, p)

	require.Equal(t, []protocol.Type{
		protocol.LoadingConfig,
		protocol.CreatedDefaultConfig,
		protocol.LoadedConfig,
		protocol.VerifyingUser,
		protocol.VerifiedUser,
		protocol.GettingToken,
		protocol.GotToken,
		protocol.LoadingStoredData,
		protocol.LoadedStoredData,
		protocol.LoadingUserData,
		protocol.LoadedUserData,
		protocol.LoadingOrgData,
		protocol.LoadedOrgData,
		protocol.PrioritizingPullRequests,
		protocol.PrioritizedPullRequests,
		protocol.StoringData,
		protocol.StoredData,
	}, types(events))

	last := events[len(events)-1]
	require.Len(t, last.Data, 1)
	require.Equal(t, model.NoReviews, last.Data[0].Priority)
	require.Equal(t, model.New, last.Data[0].UpdateState)
}

func TestRunConfigErrorEmitsSingleError(t *testing.T) {
	cfgErr := &config.ValidationError{Messages: []string{"Yaml must contain a 'sources' property."}}
	p := New(&fakeConfig{err: cfgErr}, &fakeForge{login: "me"}, &fakeForge{},
		&fakeFetcher{}, store.NewMemory(), zaptest.NewLogger(t))

	events := collect(t, p)

	require.Equal(t, []protocol.Type{protocol.LoadingConfig, protocol.Error}, types(events))
	require.Contains(t, events[1].Error, "sources")
}

func TestRunIdentityAndTokenErrors(t *testing.T) {
	p := New(&fakeConfig{cfg: selfConfig()}, &fakeForge{whoErr: errors.New("gh not installed")}, &fakeForge{},
		&fakeFetcher{}, store.NewMemory(), zaptest.NewLogger(t))
	events := collect(t, p)
	require.Equal(t, protocol.Error, events[len(events)-1].Type)
	require.Equal(t, "gh not installed", events[len(events)-1].Error)
	require.NotContains(t, types(events), protocol.GettingToken)

	p = New(&fakeConfig{cfg: selfConfig()}, &fakeForge{login: "me"}, &fakeForge{tokenErr: errors.New("not logged in")},
		&fakeFetcher{}, store.NewMemory(), zaptest.NewLogger(t))
	events = collect(t, p)
	require.Equal(t, []protocol.Type{
		protocol.LoadingConfig, protocol.LoadedConfig,
		protocol.VerifyingUser, protocol.VerifiedUser,
		protocol.GettingToken, protocol.Error,
	}, types(events))
}

func TestRunFetchErrorAbortsRun(t *testing.T) {
	s := store.NewMemory()
	p := New(&fakeConfig{cfg: selfConfig()}, &fakeForge{login: "me"}, &fakeForge{},
		&fakeFetcher{err: errors.New("github: 502 bad gateway")}, s, zaptest.NewLogger(t))

	events := collect(t, p)

	last := events[len(events)-1]
	require.Equal(t, protocol.Error, last.Type)
	require.Equal(t, "github: 502 bad gateway", last.Error)
	require.NotContains(t, types(events), protocol.StoredData)
	require.Empty(t, s.Load())
}

func TestRunMarksUpdatesAgainstPreviousRun(t *testing.T) {
	fetcher := &fakeFetcher{user: map[string][]model.PullRequest{
		"me": {pullRequest("u/1", "bob"), pullRequest("u/2", "bob")},
	}}
	s := store.NewMemory()
	p := New(&fakeConfig{cfg: selfConfig()}, &fakeForge{login: "me"}, &fakeForge{},
		fetcher, s, zaptest.NewLogger(t))

	collect(t, p)

	changed := pullRequest("u/2", "bob")
	changed.UpdatedAt = t0.Add(time.Hour)
	fetcher.user["me"] = []model.PullRequest{pullRequest("u/1", "bob"), changed, pullRequest("u/3", "bob")}

	events := collect(t, p)

	stored := events[len(events)-1]
	states := map[string]model.UpdateState{}
	for _, pr := range stored.Data {
		states[pr.URL] = pr.UpdateState
	}
	require.Equal(t, map[string]model.UpdateState{
		"u/1": model.NoChange,
		"u/2": model.Updated,
		"u/3": model.New,
	}, states)

	var loaded protocol.Message
	for _, e := range events {
		if e.Type == protocol.LoadedStoredData {
			loaded = e
		}
	}
	require.Len(t, loaded.Data, 2)
}

func TestRunDuplicateURLsAcrossRuns(t *testing.T) {
	later := pullRequest("u/1", "bob")
	later.UpdatedAt = t0.Add(time.Hour)
	fetcher := &fakeFetcher{user: map[string][]model.PullRequest{
		"me": {pullRequest("u/1", "bob"), later},
	}}
	p := New(&fakeConfig{cfg: selfConfig()}, &fakeForge{login: "me"}, &fakeForge{},
		fetcher, store.NewMemory(), zaptest.NewLogger(t))

	events := collect(t, p)
	stored := events[len(events)-1]
	require.Equal(t, protocol.StoredData, stored.Type)
	require.Len(t, stored.Data, 1)
	require.Equal(t, model.New, stored.Data[0].UpdateState)
	require.True(t, t0.Equal(stored.Data[0].UpdatedAt))

	latest := pullRequest("u/1", "bob")
	latest.UpdatedAt = t0.Add(2 * time.Hour)
	fetcher.user["me"] = []model.PullRequest{latest, pullRequest("u/1", "bob")}

	events = collect(t, p)
	stored = events[len(events)-1]
	require.Equal(t, protocol.StoredData, stored.Type)
	require.Len(t, stored.Data, 1)
	require.Equal(t, model.Updated, stored.Data[0].UpdateState)
	require.True(t, latest.UpdatedAt.Equal(stored.Data[0].UpdatedAt))
}

func TestRunFetchesEverySourceInConfigOrder(t *testing.T) {
	cfg := &config.Config{
		Version: config.Version,
		Sources: []config.Source{
			{Organization: "acme", Include: []config.Reference{{Repo: "api"}}},
			{Username: config.SelfUsername},
			{Username: "alice"},
		},
		Settings: config.Settings{Ignore: []config.Reference{{Username: "dependabot"}}},
	}
	fetcher := &fakeFetcher{
		user: map[string][]model.PullRequest{
			"me":    {pullRequest("u/1", "me")},
			"alice": {pullRequest("u/2", "alice")},
		},
		org: []model.PullRequest{pullRequest("u/1", "me"), pullRequest("u/3", "carol")},
	}
	p := New(&fakeConfig{cfg: cfg}, &fakeForge{login: "me"}, &fakeForge{},
		fetcher, store.NewMemory(), zaptest.NewLogger(t))

	events := collect(t, p)

	stored := events[len(events)-1]
	require.Equal(t, protocol.StoredData, stored.Type)
	require.Len(t, stored.Data, 3)
	require.Len(t, fetcher.queries, 3)
	for _, q := range fetcher.queries {
		require.Contains(t, q.Ignore, config.Reference{Username: "dependabot"})
	}
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	p := New(&fakeConfig{cfg: selfConfig()}, &fakeForge{login: "me"}, &fakeForge{},
		&fakeFetcher{}, store.NewMemory(), zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	events := p.Run(ctx)
	first := <-events
	require.Equal(t, protocol.LoadingConfig, first.Type)
	cancel()

	select {
	case _, ok := <-events:
		for ok {
			_, ok = <-events
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
}
