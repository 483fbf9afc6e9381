package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"basegraph.app/trackersync/internal/jira"
)

// Client is the slice of the Jira REST API the sync tasks and the scheduler use.
type Client interface {
	GetIssue(ctx context.Context, key string) (*jira.Issue, error)
	GetSprint(ctx context.Context, sprintID string) (*jira.Sprint, error)
	ListSprintIssues(ctx context.Context, sprintID string) ([]jira.Issue, error)
	ListBoards(ctx context.Context) ([]jira.Board, error)
	ListBoardSprints(ctx context.Context, boardID string) ([]jira.Sprint, error)
}

type Options struct {
	Credential    Credential
	Fields        jira.FieldConfig
	Timeout       time.Duration
	RatePerMinute int
	PageSize      int
	// HTTPClient replaces the default traced client, mostly for tests.
	HTTPClient *http.Client
}

type HTTPClient struct {
	baseURL  string
	cred     Credential
	fields   jira.FieldConfig
	http     *http.Client
	limiter  *rate.Limiter
	timeout  time.Duration
	pageSize int
}

const maxPages = 200

func NewHTTPClient(opts Options) (*HTTPClient, error) {
	if err := opts.Credential.Validate(); err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	var limiter *rate.Limiter
	if opts.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(opts.RatePerMinute)/60), max(1, opts.RatePerMinute/10))
	}

	return &HTTPClient{
		baseURL:  strings.TrimRight(opts.Credential.BaseURL, "/"),
		cred:     opts.Credential,
		fields:   opts.Fields,
		http:     httpClient,
		limiter:  limiter,
		timeout:  opts.Timeout,
		pageSize: opts.PageSize,
	}, nil
}

func (c *HTTPClient) GetIssue(ctx context.Context, key string) (*jira.Issue, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/rest/api/3/issue/"+url.PathEscape(key), nil, &raw); err != nil {
		return nil, err
	}
	issue := jira.ParseIssue(raw, c.fields)
	if issue == nil {
		return nil, fmt.Errorf("issue %s: unexpected response shape", key)
	}
	return issue, nil
}

func (c *HTTPClient) GetSprint(ctx context.Context, sprintID string) (*jira.Sprint, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/rest/agile/1.0/sprint/"+url.PathEscape(sprintID), nil, &raw); err != nil {
		return nil, err
	}
	sprint := jira.ParseSprint(raw)
	if sprint == nil {
		return nil, fmt.Errorf("sprint %s: unexpected response shape", sprintID)
	}
	return sprint, nil
}

func (c *HTTPClient) ListSprintIssues(ctx context.Context, sprintID string) ([]jira.Issue, error) {
	var issues []jira.Issue
	path := "/rest/agile/1.0/sprint/" + url.PathEscape(sprintID) + "/issue"

	for page, startAt := 0, 0; page < maxPages; page++ {
		var resp struct {
			Issues     []json.RawMessage `json:"issues"`
			StartAt    int               `json:"startAt"`
			MaxResults int               `json:"maxResults"`
			Total      int               `json:"total"`
		}
		if err := c.get(ctx, path, c.pageQuery(startAt), &resp); err != nil {
			return nil, err
		}
		for _, raw := range resp.Issues {
			if issue := jira.ParseIssue(raw, c.fields); issue != nil {
				issues = append(issues, *issue)
			}
		}
		startAt += len(resp.Issues)
		if len(resp.Issues) == 0 || startAt >= resp.Total {
			break
		}
	}
	return issues, nil
}

func (c *HTTPClient) ListBoards(ctx context.Context) ([]jira.Board, error) {
	var boards []jira.Board
	err := c.pageValues(ctx, "/rest/agile/1.0/board", nil, func(raw json.RawMessage) {
		if b := jira.ParseBoard(raw); b != nil {
			boards = append(boards, *b)
		}
	})
	return boards, err
}

func (c *HTTPClient) ListBoardSprints(ctx context.Context, boardID string) ([]jira.Sprint, error) {
	var sprints []jira.Sprint
	extra := url.Values{"state": {"future,active,closed"}}
	err := c.pageValues(ctx, "/rest/agile/1.0/board/"+url.PathEscape(boardID)+"/sprint", extra, func(raw json.RawMessage) {
		if s := jira.ParseSprint(raw); s != nil {
			if s.OriginBoardID == nil {
				s.OriginBoardID = &boardID
			}
			sprints = append(sprints, *s)
		}
	})
	return sprints, err
}

// pageValues walks the agile API's {values, isLast} pagination.
func (c *HTTPClient) pageValues(ctx context.Context, path string, extra url.Values, each func(json.RawMessage)) error {
	for page, startAt := 0, 0; page < maxPages; page++ {
		query := c.pageQuery(startAt)
		for k, v := range extra {
			query[k] = v
		}

		var resp struct {
			Values []json.RawMessage `json:"values"`
			IsLast bool              `json:"isLast"`
		}
		if err := c.get(ctx, path, query, &resp); err != nil {
			return err
		}
		for _, raw := range resp.Values {
			each(raw)
		}
		startAt += len(resp.Values)
		if resp.IsLast || len(resp.Values) == 0 {
			return nil
		}
	}
	slog.WarnContext(ctx, "pagination stopped at page limit", "path", path, "max_pages", maxPages)
	return nil
}

func (c *HTTPClient) pageQuery(startAt int) url.Values {
	return url.Values{
		"startAt":    {strconv.Itoa(startAt)},
		"maxResults": {strconv.Itoa(c.pageSize)},
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, query url.Values, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("jira rate limiter: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.cred.Email, c.cred.APIToken)
	req.Header.Set("Accept", "application/json")

	RecordCall(ctx)
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	slog.DebugContext(ctx, "jira request",
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(http.MethodGet, path, resp, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
