package jira

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

	"KnowledgeScanner/internal/config"
	"KnowledgeScanner/internal/domain"
	"KnowledgeScanner/internal/ports"
)

// Kind is the connector kind used in source configuration.
const Kind = "jira"

const (
	jiraTimeLayout = "2006-01-02T15:04:05.000-0700"
	issueFields    = "summary,description,status,assignee,resolution,resolutiondate,comment"
)

// Client talks to the Jira REST API v2 with basic auth. It serves both as a
// source of recently resolved issues and as the ticket lookup backend.
type Client struct {
	baseURL      string
	email        string
	token        string
	project      string
	resolvedDays int
	http         *http.Client
	logger       *slog.Logger
}

var (
	_ ports.SourceConnector = (*Client)(nil)
	_ ports.TicketLookup    = (*Client)(nil)
)

// NewClient creates a reusable HTTP client from configuration.
func NewClient(cfg config.JiraConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	days := cfg.ResolvedWithinDays
	if days <= 0 {
		days = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		email:        cfg.Email,
		token:        cfg.APIToken,
		project:      cfg.Project,
		resolvedDays: days,
		http:         &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

// Kind implements the connector registry contract.
func (c *Client) Kind() string { return Kind }

type issue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string `json:"summary"`
		Description string `json:"description"`
		Status      *struct {
			Name string `json:"name"`
		} `json:"status"`
		Assignee *struct {
			EmailAddress string `json:"emailAddress"`
			DisplayName  string `json:"displayName"`
		} `json:"assignee"`
		Resolution *struct {
			Name string `json:"name"`
		} `json:"resolution"`
		ResolutionDate string `json:"resolutiondate"`
		Comment        *struct {
			Comments []struct {
				Body string `json:"body"`
			} `json:"comments"`
		} `json:"comment"`
	} `json:"fields"`
}

// JQL builds the search for issues resolved within days, narrowed by an
// optional project and extra clause.
func JQL(project string, days int, extra string) string {
	clauses := []string{fmt.Sprintf("resolved >= -%dd", days)}
	if project != "" {
		clauses = append([]string{fmt.Sprintf("project = %q", project)}, clauses...)
	}
	if extra = strings.TrimSpace(extra); extra != "" {
		clauses = append(clauses, "("+extra+")")
	}
	return strings.Join(clauses, " AND ") + " ORDER BY resolved ASC"
}

// List returns every issue resolved inside the window, oldest first.
// q.Filter is appended as a JQL clause and q.Limit is the page size; pages
// are followed with startAt until the window is exhausted.
func (c *Client) List(ctx context.Context, q ports.Query) ([]domain.ItemRef, error) {
	params := url.Values{}
	params.Set("jql", JQL(c.project, c.resolvedDays, q.Filter))
	params.Set("fields", "summary")
	if q.Limit > 0 {
		params.Set("maxResults", strconv.Itoa(q.Limit))
	}

	var refs []domain.ItemRef
	for startAt := 0; ; {
		params.Set("startAt", strconv.Itoa(startAt))

		var page struct {
			StartAt int     `json:"startAt"`
			Total   int     `json:"total"`
			Issues  []issue `json:"issues"`
		}
		if _, err := c.get(ctx, "/rest/api/2/search?"+params.Encode(), &page); err != nil {
			return nil, err
		}

		for _, is := range page.Issues {
			if is.Key != "" {
				refs = append(refs, domain.ItemRef{ID: is.Key})
			}
		}

		startAt += len(page.Issues)
		if len(page.Issues) == 0 || startAt >= page.Total {
			break
		}
	}
	return refs, nil
}

// Fetch loads one issue and flattens it into an item.
func (c *Client) Fetch(ctx context.Context, key string) (domain.Item, error) {
	is, found, err := c.issue(ctx, key)
	if err != nil {
		return domain.Item{}, err
	}
	if !found {
		return domain.Item{}, fmt.Errorf("%w: issue %s not found", domain.ErrMalformedResponse, key)
	}
	return toItem(is), nil
}

// LookupTicket resolves key; an unknown key yields a nil ticket.
func (c *Client) LookupTicket(ctx context.Context, key string) (*domain.Ticket, error) {
	is, found, err := c.issue(ctx, key)
	if err != nil || !found {
		return nil, err
	}

	ticket := &domain.Ticket{Key: is.Key, Summary: is.Fields.Summary}
	if is.Fields.Status != nil {
		ticket.Status = is.Fields.Status.Name
	}
	if is.Fields.Assignee != nil {
		ticket.AssigneeEmail = is.Fields.Assignee.EmailAddress
	}
	return ticket, nil
}

func (c *Client) issue(ctx context.Context, key string) (issue, bool, error) {
	var is issue
	status, err := c.get(ctx, "/rest/api/2/issue/"+url.PathEscape(key)+"?fields="+issueFields, &is)
	if status == http.StatusNotFound {
		c.logger.DebugContext(ctx, "jira issue not found", "key", key)
		return issue{}, false, nil
	}
	if err != nil {
		return issue{}, false, err
	}
	if is.Key == "" {
		is.Key = key
	}
	return is, true, nil
}

func toItem(is issue) domain.Item {
	item := domain.Item{
		ID:      is.Key,
		Subject: fmt.Sprintf("[%s] %s", is.Key, is.Fields.Summary),
	}
	if is.Fields.Assignee != nil {
		item.Sender = is.Fields.Assignee.EmailAddress
	}
	if t, err := time.Parse(jiraTimeLayout, is.Fields.ResolutionDate); err == nil {
		item.ReceivedAt = t.UTC()
	}

	var parts []string
	if d := strings.TrimSpace(is.Fields.Description); d != "" {
		parts = append(parts, d)
	}
	if is.Fields.Comment != nil && len(is.Fields.Comment.Comments) > 0 {
		last := is.Fields.Comment.Comments[len(is.Fields.Comment.Comments)-1]
		if body := strings.TrimSpace(last.Body); body != "" {
			parts = append(parts, "Latest comment:\n"+body)
		}
	}
	if is.Fields.Resolution != nil && is.Fields.Resolution.Name != "" {
		parts = append(parts, "Resolution: "+is.Fields.Resolution.Name)
	}
	item.RawContent = strings.Join(parts, "\n\n")
	return item
}

func (c *Client) get(ctx context.Context, path string, v any) (int, error) {
	if c.baseURL == "" {
		return 0, domain.Configf("jira base url is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("new request: %w", err)
	}
	req.SetBasicAuth(c.email, c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: jira request: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return resp.StatusCode, fmt.Errorf("%w: jira rejected credentials (%s)", domain.ErrConfiguration, resp.Status)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return resp.StatusCode, fmt.Errorf("%w: jira status %s", domain.ErrTransient, resp.Status)
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("jira status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: decode jira response: %v", domain.ErrMalformedResponse, err)
	}
	return resp.StatusCode, nil
}
