// Package trackerclient is the HTTP client for the issue tracker: paginated
// issue listing, single-resource fetches, and project/version/user/enum
// lookups. It is deliberately modeled on the teacher's jira.Client and
// github.Client (a thin net/http wrapper with a single authenticated
// doRequest chokepoint), generalized to the tracker's Redmine-shaped REST
// surface (offset/limit/total_count pagination, X-Redmine-API-Key auth).
package trackerclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"
)

// DefaultConnConcurrency bounds how many tracker HTTP calls may be
// in-flight at once (TRACKER_CONN_CONCURRENCY), so the gateway doesn't
// trip the tracker's own rate limiter under request fan-out.
const DefaultConnConcurrency = 8

// PageSize is the page size requested for full-table pagination.
const PageSize = 100

// DefaultMaxIssues is the upper cap on rows fetched for a full issues table
// (CACHE_MAX_ISSUES overrides it).
const DefaultMaxIssues = 1000

const (
	retryBase    = 250 * time.Millisecond
	retryCap     = 4 * time.Second
	retryMaxTrys = 3
)

// Client is the authenticated HTTP client for the tracker's REST API.
type Client struct {
	BaseURL    string
	APIKey     string
	BearerToken string
	HTTPClient *http.Client

	// MaxIssues bounds a full-table ListIssues call (CACHE_MAX_ISSUES).
	MaxIssues int

	conns *semaphore.Weighted
}

// New creates a tracker client. Exactly one of apiKey/bearerToken should be
// set; apiKey takes precedence when both are present. connConcurrency <= 0
// falls back to DefaultConnConcurrency.
func New(baseURL, apiKey, bearerToken string, httpClient *http.Client, connConcurrency int) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if connConcurrency <= 0 {
		connConcurrency = DefaultConnConcurrency
	}
	return &Client{
		BaseURL:     strings.TrimSuffix(baseURL, "/"),
		APIKey:      apiKey,
		BearerToken: bearerToken,
		HTTPClient:  httpClient,
		MaxIssues:   DefaultMaxIssues,
		conns:       semaphore.NewWeighted(int64(connConcurrency)),
	}
}

// Filter is the set of optional query parameters accepted by ListIssues and
// CountIssues, mirroring spec §4.1's filterable dimensions.
type Filter struct {
	ProjectID     int
	FixedVersionID int
	StatusID      string // numeric id, or "open"/"closed"/"*" per the tracker's convention
	TrackerID     int
	PriorityID    int
	AssigneeID    int
	CreatedOn     string // tracker date/range operator syntax, e.g. ">=2026-01-01"
	UpdatedOn     string
	ClosedOn      string
}

func (f Filter) values(extra url.Values) url.Values {
	v := extra
	if v == nil {
		v = url.Values{}
	}
	if f.ProjectID != 0 {
		v.Set("project_id", strconv.Itoa(f.ProjectID))
	}
	if f.FixedVersionID != 0 {
		v.Set("fixed_version_id", strconv.Itoa(f.FixedVersionID))
	}
	if f.StatusID != "" {
		v.Set("status_id", f.StatusID)
	}
	if f.TrackerID != 0 {
		v.Set("tracker_id", strconv.Itoa(f.TrackerID))
	}
	if f.PriorityID != 0 {
		v.Set("priority_id", strconv.Itoa(f.PriorityID))
	}
	if f.AssigneeID != 0 {
		v.Set("assigned_to_id", strconv.Itoa(f.AssigneeID))
	}
	if f.CreatedOn != "" {
		v.Set("created_on", f.CreatedOn)
	}
	if f.UpdatedOn != "" {
		v.Set("updated_on", f.UpdatedOn)
	}
	if f.ClosedOn != "" {
		v.Set("closed_on", f.ClosedOn)
	}
	return v
}

// IssueExport is the tracker's JSON representation of one issue.
type IssueExport struct {
	ID           int            `json:"id"`
	Subject      string         `json:"subject"`
	Project      IDNameExport     `json:"project"`
	Tracker      IDNameExport     `json:"tracker"`
	Status       IDNameExport     `json:"status"`
	Priority     IDNameExport     `json:"priority"`
	Assignee     *IDNameExport    `json:"assigned_to"`
	FixedVersion *IDNameExport    `json:"fixed_version"`
	EstimatedHours *float64     `json:"estimated_hours"`
	SpentHours     *float64     `json:"spent_hours"`
	CreatedOn    string         `json:"created_on"`
	UpdatedOn    string         `json:"updated_on"`
	ClosedOn     *string        `json:"closed_on"`
	StartDate    *string        `json:"start_date"`
	DueDate      *string        `json:"due_date"`
	DoneRatio    int            `json:"done_ratio"`
}

type IDNameExport struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type issuesResponse struct {
	Issues     []IssueExport `json:"issues"`
	TotalCount int         `json:"total_count"`
	Offset     int         `json:"offset"`
	Limit      int         `json:"limit"`
}

// IssuePage is the result of a full-table ListIssues call.
type IssuePage struct {
	Issues     []IssueExport
	TotalCount int
	Truncated  bool
}

// CountIssues issues a limit=1 request and returns only TotalCount, per
// spec §4.1's direct-count fast path: the response body is parsed but the
// row payload is discarded.
func (c *Client) CountIssues(ctx context.Context, filter Filter) (int, error) {
	v := filter.values(url.Values{"limit": {"1"}})
	var resp issuesResponse
	if err := c.getJSON(ctx, "count_issues", "/issues.json", v, &resp); err != nil {
		return 0, err
	}
	return resp.TotalCount, nil
}

// ListIssues fetches the full matching table, paginating in pages of
// PageSize until offset+returned >= total_count or MaxIssues is reached.
func (c *Client) ListIssues(ctx context.Context, filter Filter) (*IssuePage, error) {
	maxIssues := c.MaxIssues
	if maxIssues <= 0 {
		maxIssues = DefaultMaxIssues
	}

	page := &IssuePage{}
	offset := 0
	for {
		v := filter.values(url.Values{
			"limit":  {strconv.Itoa(PageSize)},
			"offset": {strconv.Itoa(offset)},
		})

		var resp issuesResponse
		if err := c.getJSON(ctx, "list_issues", "/issues.json", v, &resp); err != nil {
			return nil, err
		}

		page.Issues = append(page.Issues, resp.Issues...)
		page.TotalCount = resp.TotalCount
		offset += len(resp.Issues)

		if len(resp.Issues) == 0 || offset >= resp.TotalCount {
			break
		}
		if len(page.Issues) >= maxIssues {
			page.Truncated = true
			break
		}
	}
	return page, nil
}

// GetIssue fetches a single issue including its change journal.
func (c *Client) GetIssue(ctx context.Context, id int) (*IssueExport, []JournalExport, error) {
	var resp struct {
		Issue struct {
			IssueExport
			Journals []JournalExport `json:"journals"`
		} `json:"issue"`
	}
	v := url.Values{"include": {"journals"}}
	if err := c.getJSON(ctx, "get_issue", fmt.Sprintf("/issues/%d.json", id), v, &resp); err != nil {
		return nil, nil, err
	}
	issue := resp.Issue.IssueExport
	return &issue, resp.Issue.Journals, nil
}

type JournalExport struct {
	CreatedOn string             `json:"created_on"`
	Details   []JournalDetailExport `json:"details"`
}

type JournalDetailExport struct {
	Property string `json:"property"`
	Name     string `json:"name"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// Project is the wire representation of a project.
type Project struct {
	ID          int    `json:"id"`
	Identifier  string `json:"identifier"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ListProjects lists all configured projects.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var resp struct {
		Projects []Project `json:"projects"`
	}
	if err := c.getJSON(ctx, "list_projects", "/projects.json", url.Values{"limit": {"100"}}, &resp); err != nil {
		return nil, err
	}
	return resp.Projects, nil
}

// Version is the wire representation of a tracker version ("sprint").
type Version struct {
	ID      int     `json:"id"`
	Name    string  `json:"name"`
	Status  string  `json:"status"`
	DueDate *string `json:"due_date"`
}

// ListVersions lists the versions defined for a project.
func (c *Client) ListVersions(ctx context.Context, projectID int) ([]Version, error) {
	var resp struct {
		Versions []Version `json:"versions"`
	}
	path := fmt.Sprintf("/projects/%d/versions.json", projectID)
	if err := c.getJSON(ctx, "list_versions", path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Versions, nil
}

// User is the wire representation of a tracker user.
type User struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ListUsers lists all known users. The tracker may deny this endpoint
// (403) for a restricted API key; callers must tolerate that without
// failing the wider refresh (see cache.Engine.doRefresh).
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var resp struct {
		Users []struct {
			ID        int    `json:"id"`
			Firstname string `json:"firstname"`
			Lastname  string `json:"lastname"`
		} `json:"users"`
	}
	if err := c.getJSON(ctx, "list_users", "/users.json", url.Values{"limit": {"100"}}, &resp); err != nil {
		return nil, err
	}
	users := make([]User, 0, len(resp.Users))
	for _, u := range resp.Users {
		users = append(users, User{ID: u.ID, Name: strings.TrimSpace(u.Firstname + " " + u.Lastname)})
	}
	return users, nil
}

// EnumKind selects one of the tracker's enumeration endpoints.
type EnumKind string

const (
	EnumStatuses   EnumKind = "issue_statuses"
	EnumTrackers   EnumKind = "trackers"
	EnumPriorities EnumKind = "enumerations/issue_priorities"
)

// ListEnum lists the id/name pairs for one of the tracker's closed
// enumerations, for generalizing beyond the compiled-in deployment (see
// SPEC_FULL §4.8). Nothing in this module calls it; the status,
// tracker and priority maps stay compiled in.
func (c *Client) ListEnum(ctx context.Context, kind EnumKind) ([]IDNameExport, error) {
	var resp map[string][]IDNameExport
	if err := c.getJSON(ctx, "list_enum", "/"+string(kind)+".json", nil, &resp); err != nil {
		return nil, err
	}
	for _, v := range resp {
		return v, nil
	}
	return nil, nil
}

// getJSON performs an authenticated GET with the client's retry policy and
// unmarshals the body into out.
func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, out interface{}) error {
	body, err := c.doWithRetry(ctx, op, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Kind: KindMalformed, Op: op, Err: err}
	}
	return nil
}

// doWithRetry wraps doRequest in the spec §4.1 retry policy: idempotent
// GETs retry on unreachable/rate_limited with exponential backoff (base
// 250ms, cap 4s, max 3 attempts); forbidden/not_found are never retried.
func (c *Client) doWithRetry(ctx context.Context, op, path string, query url.Values) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryBase
	b.MaxInterval = retryCap
	b.MaxElapsedTime = 0 // bounded by WithMaxRetries below, not wall-clock

	bo := backoff.WithContext(backoff.WithMaxRetries(b, retryMaxTrys-1), ctx)

	var body []byte
	err := backoff.Retry(func() error {
		b, err := c.doRequest(ctx, op, path, query)
		if err != nil {
			var te *Error
			if asError(err, &te) && !te.Retryable() {
				return backoff.Permanent(err)
			}
			return err
		}
		body = b
		return nil
	}, bo)

	if err != nil {
		return nil, err
	}
	return body, nil
}

func asError(err error, target **Error) bool {
	te, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = te
	return true
}

func (c *Client) doRequest(ctx context.Context, op, path string, query url.Values) ([]byte, error) {
	if c.BaseURL == "" {
		return nil, &Error{Kind: KindMalformed, Op: op, Err: fmt.Errorf("tracker base URL not configured")}
	}

	if err := c.conns.Acquire(ctx, 1); err != nil {
		return nil, &Error{Kind: KindUnreachable, Op: op, Err: err}
	}
	defer c.conns.Release(1)

	reqURL := c.BaseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Op: op, Err: err}
	}
	c.setAuth(req)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "tracker-gateway/1.0")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindUnreachable, Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindUnreachable, Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, classifyStatus(op, resp.StatusCode, retryAfter, respBody)
	}

	return respBody, nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.APIKey != "" {
		req.Header.Set("X-Redmine-API-Key", c.APIKey)
		return
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}
