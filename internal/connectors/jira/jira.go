// Package jira is the Jira connector daemon counterpart to
// internal/connectors/github: a periodic sync that turns recently
// updated issues and their comments into discussions-collection memory
// records. Built on stdlib net/http — no Jira client library exists
// anywhere in the example pack, and the connector only needs a handful
// of REST calls against Jira Cloud's documented JSON API, well within
// what a thin stdlib client covers idiomatically.
package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hiddenhistory/memctl/internal/observability/logging"
	"github.com/hiddenhistory/memctl/internal/storage"
	"github.com/hiddenhistory/memctl/internal/types"
)

// Config is one project's Jira enrichment settings (spec section 6's
// per-project instance/token knobs).
type Config struct {
	Host    string // e.g. "https://yourorg.atlassian.net"
	Email   string
	Token   string
	Project string
	GroupID string
}

// Connector syncs one Jira project's recent activity into memory.
type Connector struct {
	cfg    Config
	http   *http.Client
	store  *storage.Store
	logger *zap.Logger
}

// New builds a Connector against cfg.Host using the default HTTP
// client.
func New(cfg Config, store *storage.Store) *Connector {
	return NewWithClient(http.DefaultClient, cfg, store)
}

// NewWithClient injects an http.Client — tests point this at an
// httptest server by passing the server's client and overriding
// cfg.Host to the server's URL.
func NewWithClient(client *http.Client, cfg Config, store *storage.Store) *Connector {
	return &Connector{cfg: cfg, http: client, store: store, logger: logging.Get(logging.CategoryConnector)}
}

const syncCap = 10

type issue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string `json:"summary"`
		Description string `json:"description"`
		Updated     string `json:"updated"`
	} `json:"fields"`
}

type searchResponse struct {
	Issues []issue `json:"issues"`
}

type commentResponse struct {
	Comments []struct {
		ID     string `json:"id"`
		Body   string `json:"body"`
		Author struct {
			DisplayName string `json:"displayName"`
		} `json:"author"`
	} `json:"comments"`
}

// Sync pulls issues updated since `since` (and their comments) and
// stores them, capped at 10 issues to match the injection-time
// enrichment ceiling (spec section 9).
func (c *Connector) Sync(ctx context.Context, since time.Time) error {
	issues, err := c.searchIssues(ctx, since)
	if err != nil {
		return fmt.Errorf("jira search: %w", err)
	}

	for _, issue := range issues {
		content := fmt.Sprintf("%s: %s\n\n%s", issue.Key, issue.Fields.Summary, issue.Fields.Description)
		if _, err := c.store.StoreMemory(ctx, storage.Input{
			Content: content, Type: types.TypeJiraIssue, SourceHook: "jira_sync",
			GroupID: c.cfg.GroupID,
			ConnectorIDs: map[string]string{
				"jira_issue_key": issue.Key,
				"jira_issue_url": c.cfg.Host + "/browse/" + issue.Key,
			},
		}); err != nil {
			c.logger.Warn("failed to store jira issue", zap.String("key", issue.Key), zap.Error(err))
		}

		comments, err := c.issueComments(ctx, issue.Key)
		if err != nil {
			c.logger.Warn("failed to fetch jira comments", zap.String("key", issue.Key), zap.Error(err))
			continue
		}
		for _, comment := range comments.Comments {
			if _, err := c.store.StoreMemory(ctx, storage.Input{
				Content: fmt.Sprintf("%s commented on %s: %s", comment.Author.DisplayName, issue.Key, comment.Body),
				Type:    types.TypeJiraComment, SourceHook: "jira_sync", GroupID: c.cfg.GroupID,
				ConnectorIDs: map[string]string{
					"jira_issue_key":  issue.Key,
					"jira_comment_id": comment.ID,
				},
			}); err != nil {
				c.logger.Warn("failed to store jira comment", zap.String("id", comment.ID), zap.Error(err))
			}
		}
	}
	return nil
}

func (c *Connector) searchIssues(ctx context.Context, since time.Time) ([]issue, error) {
	jql := fmt.Sprintf("project = %s AND updated >= \"%s\" ORDER BY updated DESC", c.cfg.Project, since.Format("2006-01-02 15:04"))
	q := url.Values{}
	q.Set("jql", jql)
	q.Set("maxResults", fmt.Sprintf("%d", syncCap))
	q.Set("fields", "summary,description,updated")

	var out searchResponse
	if err := c.get(ctx, "/rest/api/2/search?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Issues, nil
}

func (c *Connector) issueComments(ctx context.Context, key string) (*commentResponse, error) {
	var out commentResponse
	if err := c.get(ctx, "/rest/api/2/issue/"+key+"/comment", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Connector) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.cfg.Host, "/")+path, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.cfg.Email, c.cfg.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jira returned HTTP %d for %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
