// Package github fetches open pull requests from the GitHub GraphQL API.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"gitnext/internal/model"
)

// DefaultURL is the public GitHub GraphQL endpoint.
const DefaultURL = "https://api.github.com/graphql"

// maxResponseSize bounds response body reads.
const maxResponseSize int64 = 64 << 20

// maxPages stops a runaway pagination loop.
const maxPages = 100

// Client executes queries built by BuildUserQuery and BuildOrgQuery.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient returns a client posting to url. A nil httpClient means
// http.DefaultClient.
func NewClient(url string, httpClient *http.Client, logger *zap.Logger) *Client {
	if url == "" {
		url = DefaultURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{url: url, httpClient: httpClient, logger: logger}
}

// Fetch runs q, following pagination when the query supports it, and
// returns the open pull requests it found.
func (c *Client) Fetch(ctx context.Context, token string, q Query) ([]model.PullRequest, error) {
	var pages []json.RawMessage
	variables := map[string]string{}
	for page := 0; ; page++ {
		if page >= maxPages {
			return nil, fmt.Errorf("github: gave up after %d pages", maxPages)
		}
		data, err := c.query(ctx, token, q.Text, variables)
		if err != nil {
			return nil, err
		}
		pages = append(pages, data)

		if !q.Paginated {
			break
		}
		info, err := userPageInfo(data)
		if err != nil {
			return nil, err
		}
		if !info.HasNextPage {
			break
		}
		variables = map[string]string{"endCursor": info.EndCursor}
	}

	c.logger.Debug("fetched pages", zap.Int("pages", len(pages)), zap.Bool("paginated", q.Paginated))

	switch q.Kind {
	case UserKind:
		return processUserPages(pages, q.Ignore)
	case OrganizationKind:
		if len(pages) != 1 {
			return nil, fmt.Errorf("github: organization query should never be paginated, got %d pages", len(pages))
		}
		return processOrgPage(pages[0], q.Ignore)
	default:
		return nil, fmt.Errorf("github: unknown query kind %d", q.Kind)
	}
}

type request struct {
	Query     string            `json:"query"`
	Variables map[string]string `json:"variables"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// query posts a single GraphQL request and returns its "data" member.
func (c *Client) query(ctx context.Context, token, text string, variables map[string]string) (json.RawMessage, error) {
	payload, err := json.Marshal(request{Query: text, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("github: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("github: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "bearer "+token)
	req.Header.Set("User-Agent", "gitnext")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github: POST %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("github: reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var decoded response
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &APIError{Message: "response not parsable as json"}
	}
	if len(decoded.Data) == 0 || string(decoded.Data) == "null" {
		if len(decoded.Errors) > 0 {
			return nil, &APIError{Message: decoded.Errors[0].Message}
		}
		return nil, &APIError{Message: "unknown GraphQL error, missing data"}
	}
	for _, e := range decoded.Errors {
		c.logger.Warn("partial GraphQL error", zap.String("message", e.Message), zap.Any("path", e.Path))
	}
	return decoded.Data, nil
}
