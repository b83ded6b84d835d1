// Package github is the GitHub connector daemon from spec section 4.9:
// a periodic sync that turns recent pull requests, issues, commits,
// and releases into discussions-collection memory records.
// Grounded on nickmisasi-mattermost-plugin-cursor's server/ghclient
// client wrapper for go-github/v68 usage (PAT auth via WithAuthToken,
// ListOptions auto-pagination) and on teradata-labs-loom's oauth2
// token-source pattern for the client construction.
package github

import (
	"context"
	"fmt"
	"time"

	gh "github.com/google/go-github/v68/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/hiddenhistory/memctl/internal/observability/logging"
	"github.com/hiddenhistory/memctl/internal/storage"
	"github.com/hiddenhistory/memctl/internal/types"
)

// Config is one project's GitHub enrichment settings (spec section 6's
// per-project repo/token knobs).
type Config struct {
	Owner   string
	Repo    string
	Token   string
	GroupID string
}

// Connector syncs one repository's recent activity into memory.
type Connector struct {
	client *gh.Client
	cfg    Config
	store  *storage.Store
	logger *zap.Logger
}

// New builds a Connector authenticated with cfg.Token.
func New(cfg Config, store *storage.Store) *Connector {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	client := gh.NewClient(oauth2.NewClient(context.Background(), ts))
	return &Connector{client: client, cfg: cfg, store: store, logger: logging.Get(logging.CategoryConnector)}
}

// NewWithClient injects an already-built *gh.Client — tests point this
// at an httptest server via gh.NewClient(nil).WithAuthToken("") plus
// client.BaseURL/UploadURL overrides.
func NewWithClient(client *gh.Client, cfg Config, store *storage.Store) *Connector {
	return &Connector{client: client, cfg: cfg, store: store, logger: logging.Get(logging.CategoryConnector)}
}

// Sync pulls everything changed since since and stores it, capped at
// 10 items per kind to match spec section 9's injection-time
// enrichment cap — the sync daemon uses the same ceiling so what it
// ingests never outpaces what retrieval will ever surface.
func (c *Connector) Sync(ctx context.Context, since time.Time) error {
	var firstErr error
	fail := func(msg string, err error) {
		c.logger.Error(msg, zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}
	if err := c.syncPullRequests(ctx, since); err != nil {
		fail("github pr sync failed", err)
	}
	if err := c.syncIssues(ctx, since); err != nil {
		fail("github issue sync failed", err)
	}
	if err := c.syncCommits(ctx, since); err != nil {
		fail("github commit sync failed", err)
	}
	if err := c.syncReleases(ctx, since); err != nil {
		fail("github release sync failed", err)
	}
	return firstErr
}

const syncCap = 10

func (c *Connector) syncPullRequests(ctx context.Context, since time.Time) error {
	prs, _, err := c.client.PullRequests.List(ctx, c.cfg.Owner, c.cfg.Repo, &gh.PullRequestListOptions{
		State: "all", Sort: "updated", Direction: "desc",
		ListOptions: gh.ListOptions{PerPage: syncCap},
	})
	if err != nil {
		return fmt.Errorf("list pull requests: %w", err)
	}

	for _, pr := range prs {
		if pr.GetUpdatedAt().Before(since) {
			break
		}
		content := fmt.Sprintf("PR #%d: %s\n\n%s", pr.GetNumber(), pr.GetTitle(), pr.GetBody())
		if _, err := c.store.StoreMemory(ctx, storage.Input{
			Content: content, Type: types.TypeGithubPR, SourceHook: "github_sync",
			GroupID: c.cfg.GroupID,
			ConnectorIDs: map[string]string{
				"github_pr_number": fmt.Sprintf("%d", pr.GetNumber()),
				"github_pr_url":    pr.GetHTMLURL(),
			},
		}); err != nil {
			c.logger.Warn("failed to store pr", zap.Int("number", pr.GetNumber()), zap.Error(err))
		}
	}
	return nil
}

func (c *Connector) syncIssues(ctx context.Context, since time.Time) error {
	issues, _, err := c.client.Issues.ListByRepo(ctx, c.cfg.Owner, c.cfg.Repo, &gh.IssueListByRepoOptions{
		State: "all", Sort: "updated", Direction: "desc", Since: since,
		ListOptions: gh.ListOptions{PerPage: syncCap},
	})
	if err != nil {
		return fmt.Errorf("list issues: %w", err)
	}

	for _, issue := range issues {
		if issue.IsPullRequest() {
			continue // surfaced by syncPullRequests instead
		}
		content := fmt.Sprintf("Issue #%d: %s\n\n%s", issue.GetNumber(), issue.GetTitle(), issue.GetBody())
		if _, err := c.store.StoreMemory(ctx, storage.Input{
			Content: content, Type: types.TypeGithubIssue, SourceHook: "github_sync",
			GroupID: c.cfg.GroupID,
			ConnectorIDs: map[string]string{
				"github_issue_number": fmt.Sprintf("%d", issue.GetNumber()),
				"github_issue_url":    issue.GetHTMLURL(),
			},
		}); err != nil {
			c.logger.Warn("failed to store issue", zap.Int("number", issue.GetNumber()), zap.Error(err))
		}
	}
	return nil
}

func (c *Connector) syncCommits(ctx context.Context, since time.Time) error {
	commits, _, err := c.client.Repositories.ListCommits(ctx, c.cfg.Owner, c.cfg.Repo, &gh.CommitsListOptions{
		Since:       since,
		ListOptions: gh.ListOptions{PerPage: syncCap},
	})
	if err != nil {
		return fmt.Errorf("list commits: %w", err)
	}

	for _, commit := range commits {
		content := fmt.Sprintf("Commit %s: %s", commit.GetSHA()[:min(7, len(commit.GetSHA()))], commit.GetCommit().GetMessage())
		if _, err := c.store.StoreMemory(ctx, storage.Input{
			Content: content, Type: types.TypeGithubCommit, SourceHook: "github_sync",
			GroupID: c.cfg.GroupID,
			ConnectorIDs: map[string]string{
				"github_commit_sha": commit.GetSHA(),
			},
		}); err != nil {
			c.logger.Warn("failed to store commit", zap.String("sha", commit.GetSHA()), zap.Error(err))
		}
	}
	return nil
}

func (c *Connector) syncReleases(ctx context.Context, since time.Time) error {
	releases, _, err := c.client.Repositories.ListReleases(ctx, c.cfg.Owner, c.cfg.Repo, &gh.ListOptions{PerPage: syncCap})
	if err != nil {
		return fmt.Errorf("list releases: %w", err)
	}

	for _, release := range releases {
		if release.GetPublishedAt().Before(since) {
			continue
		}
		content := fmt.Sprintf("Release %s: %s\n\n%s", release.GetTagName(), release.GetName(), release.GetBody())
		if _, err := c.store.StoreMemory(ctx, storage.Input{
			Content: content, Type: types.TypeGithubRelease, SourceHook: "github_sync",
			GroupID: c.cfg.GroupID,
			ConnectorIDs: map[string]string{
				"github_release_tag": release.GetTagName(),
			},
		}); err != nil {
			c.logger.Warn("failed to store release", zap.String("tag", release.GetTagName()), zap.Error(err))
		}
	}
	return nil
}
