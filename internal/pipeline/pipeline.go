// Package pipeline loads, ranks and stores the viewer's pull requests,
// reporting progress as a sequence of protocol messages.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gitnext/internal/config"
	"gitnext/internal/forge"
	"gitnext/internal/github"
	"gitnext/internal/model"
	"gitnext/internal/protocol"
)

// ConfigProvider loads the validated configuration, seeding a default file
// when none exists.
type ConfigProvider interface {
	EnsureDefault() (bool, error)
	Load() (*config.Config, error)
}

// IdentityProvider resolves the viewer.
type IdentityProvider interface {
	Whoami(ctx context.Context) (forge.Identity, error)
}

// CredentialProvider resolves the API token.
type CredentialProvider interface {
	AuthToken(ctx context.Context) (forge.Token, error)
}

// Fetcher runs one source query.
type Fetcher interface {
	Fetch(ctx context.Context, token string, q github.Query) ([]model.PullRequest, error)
}

// Store holds the previous run's result.
type Store interface {
	Load() []model.PrioritizedPullRequest
	Save(prs []model.PrioritizedPullRequest)
}

// Pipeline runs the load phases in a fixed order.
type Pipeline struct {
	config      ConfigProvider
	identity    IdentityProvider
	credentials CredentialProvider
	fetcher     Fetcher
	store       Store
	logger      *zap.Logger
}

// New returns a Pipeline wired to its collaborators.
func New(cfg ConfigProvider, identity IdentityProvider, credentials CredentialProvider, fetcher Fetcher, store Store, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		config:      cfg,
		identity:    identity,
		credentials: credentials,
		fetcher:     fetcher,
		store:       store,
		logger:      logger,
	}
}

// phase is a position in the pipeline's fixed execution order.
type phase int

const (
	loadConfig phase = iota
	verifyUser
	getToken
	loadStoredData
	loadUserData
	loadOrgData
	prioritize
	storeData
	done
)

var phaseNames = [...]string{
	loadConfig:     "load_config",
	verifyUser:     "verify_user",
	getToken:       "get_token",
	loadStoredData: "load_stored_data",
	loadUserData:   "load_user_data",
	loadOrgData:    "load_org_data",
	prioritize:     "prioritize",
	storeData:      "store_data",
	done:           "done",
}

func (p phase) String() string { return phaseNames[p] }

// run carries the values produced by earlier phases.
type run struct {
	*Pipeline
	out chan<- protocol.Message

	cfg      *config.Config
	viewer   forge.Identity
	token    forge.Token
	previous []model.PrioritizedPullRequest
	userPRs  []model.PullRequest
	orgPRs   []model.PullRequest
	result   []model.PrioritizedPullRequest
}

// Run starts a new run and returns its events. The channel is unbuffered,
// so each phase only proceeds once the previous event has been received. It
// is closed after the terminal STORED_DATA or ERROR event, or when ctx is
// cancelled.
func (p *Pipeline) Run(ctx context.Context) <-chan protocol.Message {
	out := make(chan protocol.Message)
	r := &run{Pipeline: p, out: out}
	go func() {
		defer close(out)
		r.execute(ctx)
	}()
	return out
}

func (r *run) execute(ctx context.Context) {
	for current := loadConfig; current != done; current++ {
		if err := r.step(ctx, current); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("pipeline phase failed", zap.Stringer("phase", current), zap.Error(err))
			r.emit(ctx, protocol.Failure(err))
			return
		}
	}
}

func (r *run) step(ctx context.Context, current phase) error {
	switch current {
	case loadConfig:
		return r.loadConfig(ctx)
	case verifyUser:
		return r.verifyUser(ctx)
	case getToken:
		return r.getToken(ctx)
	case loadStoredData:
		return r.loadStoredData(ctx)
	case loadUserData:
		return r.loadUserData(ctx)
	case loadOrgData:
		return r.loadOrgData(ctx)
	case prioritize:
		return r.prioritize(ctx)
	case storeData:
		return r.storeData(ctx)
	default:
		return fmt.Errorf("unknown phase %d", current)
	}
}

func (r *run) emit(ctx context.Context, m protocol.Message) error {
	select {
	case r.out <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *run) loadConfig(ctx context.Context) error {
	if err := r.emit(ctx, protocol.Event(protocol.LoadingConfig)); err != nil {
		return err
	}
	created, err := r.config.EnsureDefault()
	if err != nil {
		return err
	}
	if created {
		if err := r.emit(ctx, protocol.Event(protocol.CreatedDefaultConfig)); err != nil {
			return err
		}
	}
	cfg, err := r.config.Load()
	if err != nil {
		return err
	}
	r.cfg = cfg
	return r.emit(ctx, protocol.Event(protocol.LoadedConfig))
}

func (r *run) verifyUser(ctx context.Context) error {
	if err := r.emit(ctx, protocol.Event(protocol.VerifyingUser)); err != nil {
		return err
	}
	viewer, err := r.identity.Whoami(ctx)
	if err != nil {
		return err
	}
	r.viewer = viewer
	return r.emit(ctx, protocol.Event(protocol.VerifiedUser))
}

func (r *run) getToken(ctx context.Context) error {
	if err := r.emit(ctx, protocol.Event(protocol.GettingToken)); err != nil {
		return err
	}
	token, err := r.credentials.AuthToken(ctx)
	if err != nil {
		return err
	}
	r.token = token
	return r.emit(ctx, protocol.Event(protocol.GotToken))
}

func (r *run) loadStoredData(ctx context.Context) error {
	if err := r.emit(ctx, protocol.Event(protocol.LoadingStoredData)); err != nil {
		return err
	}
	r.previous = r.store.Load()
	return r.emit(ctx, protocol.WithData(protocol.LoadedStoredData, r.previous))
}

func (r *run) loadUserData(ctx context.Context) error {
	if err := r.emit(ctx, protocol.Event(protocol.LoadingUserData)); err != nil {
		return err
	}
	queries := make([]github.Query, 0, len(r.cfg.Sources))
	for _, source := range r.cfg.UserSources() {
		queries = append(queries, github.BuildUserQuery(r.viewer.Name, source, r.cfg.Settings.Ignore))
	}
	prs, err := r.fetchAll(ctx, queries)
	if err != nil {
		return err
	}
	r.userPRs = prs
	return r.emit(ctx, protocol.Event(protocol.LoadedUserData))
}

func (r *run) loadOrgData(ctx context.Context) error {
	if err := r.emit(ctx, protocol.Event(protocol.LoadingOrgData)); err != nil {
		return err
	}
	queries := make([]github.Query, 0, len(r.cfg.Sources))
	for _, source := range r.cfg.OrganizationSources() {
		queries = append(queries, github.BuildOrgQuery(source, r.cfg.Settings.Ignore))
	}
	prs, err := r.fetchAll(ctx, queries)
	if err != nil {
		return err
	}
	r.orgPRs = prs
	return r.emit(ctx, protocol.Event(protocol.LoadedOrgData))
}

// fetchAll runs queries concurrently and concatenates the results in query
// order. The first failure cancels the others.
func (r *run) fetchAll(ctx context.Context, queries []github.Query) ([]model.PullRequest, error) {
	results := make([][]model.PullRequest, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			prs, err := r.fetcher.Fetch(gctx, r.token.Value, q)
			if err != nil {
				return err
			}
			results[i] = prs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var combined []model.PullRequest
	for _, prs := range results {
		combined = append(combined, prs...)
	}
	return combined, nil
}

func (r *run) prioritize(ctx context.Context) error {
	if err := r.emit(ctx, protocol.Event(protocol.PrioritizingPullRequests)); err != nil {
		return err
	}
	r.result = Prioritize(r.viewer.Name, r.previous, r.userPRs, r.orgPRs)
	r.logger.Info("prioritized pull requests",
		zap.String("viewer", r.viewer.Name),
		zap.Int("user", len(r.userPRs)),
		zap.Int("org", len(r.orgPRs)),
		zap.Int("result", len(r.result)),
	)
	return r.emit(ctx, protocol.Event(protocol.PrioritizedPullRequests))
}

func (r *run) storeData(ctx context.Context) error {
	if err := r.emit(ctx, protocol.Event(protocol.StoringData)); err != nil {
		return err
	}
	r.store.Save(r.result)
	return r.emit(ctx, protocol.WithData(protocol.StoredData, r.result))
}
