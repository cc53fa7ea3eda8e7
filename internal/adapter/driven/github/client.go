// Package github implements the Fetcher and BranchLister ports against the
// GitHub REST API using the go-github library. It assembles the same payload
// shape the fetch service returns, so its output flows through the Normalizer
// unchanged.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
	"github.com/parthraninga/DORA-Metrics/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.Fetcher      = (*Client)(nil)
	_ driven.BranchLister = (*Client)(nil)
)

// Client talks to GitHub on behalf of whichever token a request carries.
// All tokens share one transport, so conditional-request caching and
// secondary rate limit handling apply across repositories.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL // nil means api.github.com.
}

// NewClient creates a GitHub client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with per-request PAT auth)
func NewClient() *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	return &Client{httpClient: github_ratelimit.NewClient(cacheTransport)}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	return &Client{httpClient: httpClient, baseURL: u}, nil
}

func (c *Client) clientFor(token string) *gh.Client {
	client := gh.NewClient(c.httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if c.baseURL != nil {
		u := *c.baseURL
		client.BaseURL = &u
	}
	return client
}

// payload mirrors the fetch service response consumed by the Normalizer.
type payload struct {
	Repos []repoSection `json:"repos"`
}

type repoSection struct {
	OrgName      string        `json:"org_name"`
	RepoName     string        `json:"repo_name"`
	PullRequests []pullRequest `json:"pull_requests"`
	WorkflowRuns []workflowRun `json:"workflow_runs"`
}

type pullRequest struct {
	Number            int     `json:"number"`
	Title             string  `json:"title"`
	Author            string  `json:"author"`
	State             string  `json:"state"`
	BaseBranch        string  `json:"base_branch"`
	HeadBranch        string  `json:"head_branch"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
	Commits           int     `json:"commits"`
	Additions         int     `json:"additions"`
	Deletions         int     `json:"deletions"`
	Comments          int     `json:"comments"`
	FirstCommitToOpen float64 `json:"first_commit_to_open"`
	CycleTime         float64 `json:"cycle_time"`
}

type workflowRun struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	HeadBranch string `json:"head_branch"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
	HTMLURL    string `json:"html_url"`
	Actor      string `json:"actor"`
	WorkflowID int64  `json:"workflow_id"`
}

// Fetch collects the pull requests merged and the workflow runs created
// inside [req.From, req.To] and returns them as one repository section.
// A GitHub error response is returned as a non-2xx FetchResponse so the
// batch records it; only transport failures are returned as errors.
func (c *Client) Fetch(ctx context.Context, req driven.FetchRequest) (*driven.FetchResponse, error) {
	client := c.clientFor(req.Token.Value)
	owner, repo := req.Repo.OrgName, req.Repo.RepoName

	prs, err := c.mergedPullRequests(ctx, client, owner, repo, req.From, req.To)
	if err != nil {
		return upstreamFailure(err)
	}

	runs, err := c.workflowRuns(ctx, client, req.Repo, req.From, req.To)
	if err != nil {
		return upstreamFailure(err)
	}

	body, err := json.Marshal(payload{Repos: []repoSection{{
		OrgName:      owner,
		RepoName:     repo,
		PullRequests: prs,
		WorkflowRuns: runs,
	}}})
	if err != nil {
		return nil, fmt.Errorf("encoding payload for %s/%s: %w", owner, repo, err)
	}

	return &driven.FetchResponse{StatusCode: http.StatusOK, Body: body}, nil
}

// upstreamFailure turns a GitHub error response into a failed FetchResponse
// carrying GitHub's message, and passes any other error through.
func upstreamFailure(err error) (*driven.FetchResponse, error) {
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		body, merr := json.Marshal(map[string]string{"error": ghErr.Message, "message": err.Error()})
		if merr != nil {
			body = []byte(ghErr.Message)
		}
		return &driven.FetchResponse{StatusCode: ghErr.Response.StatusCode, Body: body}, nil
	}
	return nil, err
}

// mergedPullRequests pages through closed pull requests newest-updated first
// and stops once a page falls entirely before from.
func (c *Client) mergedPullRequests(ctx context.Context, client *gh.Client, owner, repo string, from, to time.Time) ([]pullRequest, error) {
	fullName := owner + "/" + repo
	opts := &gh.PullRequestListOptions{
		State:     "closed",
		Sort:      "updated",
		Direction: "desc",
		ListOptions: gh.ListOptions{
			PerPage: 100,
		},
	}

	out := []pullRequest{}

	for {
		prs, resp, err := client.PullRequests.List(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("listing pull requests for %s (page %d): %w", fullName, opts.Page, err)
		}

		logRateLimit(resp, fullName, opts.Page, len(prs))

		older := 0
		for _, pr := range prs {
			if pr.GetUpdatedAt().Before(from) {
				older++
				continue
			}
			merged := pr.GetMergedAt().Time
			if merged.IsZero() || merged.Before(from) || merged.After(to) {
				continue
			}

			firstCommit, commits, err := c.firstCommit(ctx, client, owner, repo, pr.GetNumber())
			if err != nil {
				return nil, err
			}
			out = append(out, mapPullRequest(pr, firstCommit, commits))
		}

		if resp.NextPage == 0 || (len(prs) > 0 && older == len(prs)) {
			break
		}
		opts.Page = resp.NextPage
	}

	return out, nil
}

// firstCommit returns the earliest authored commit of a pull request and the
// number of commits seen. GitHub caps the listing at 250 commits.
func (c *Client) firstCommit(ctx context.Context, client *gh.Client, owner, repo string, number int) (time.Time, int, error) {
	opts := &gh.ListOptions{PerPage: 100}

	var earliest time.Time
	count := 0

	for {
		commits, resp, err := client.PullRequests.ListCommits(ctx, owner, repo, number, opts)
		if err != nil {
			return time.Time{}, 0, fmt.Errorf("listing commits for %s/%s#%d (page %d): %w", owner, repo, number, opts.Page, err)
		}

		for _, rc := range commits {
			count++
			at := rc.GetCommit().GetAuthor().GetDate().Time
			if at.IsZero() {
				continue
			}
			if earliest.IsZero() || at.Before(earliest) {
				earliest = at
			}
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return earliest, count, nil
}

// workflowRuns lists the runs created in [from, to]. CI-CD repositories with
// a workflow file only report that workflow.
func (c *Client) workflowRuns(ctx context.Context, client *gh.Client, r model.Repository, from, to time.Time) ([]workflowRun, error) {
	fullName := r.FullName()
	opts := &gh.ListWorkflowRunsOptions{
		Created:     from.UTC().Format(time.RFC3339) + ".." + to.UTC().Format(time.RFC3339),
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	out := []workflowRun{}

	for {
		var (
			runs *gh.WorkflowRuns
			resp *gh.Response
			err  error
		)
		if r.CFRType == model.CFRTypeCICD && r.WorkflowFile != "" {
			runs, resp, err = client.Actions.ListWorkflowRunsByFileName(ctx, r.OrgName, r.RepoName, r.WorkflowFile, opts)
		} else {
			runs, resp, err = client.Actions.ListRepositoryWorkflowRuns(ctx, r.OrgName, r.RepoName, opts)
		}
		if err != nil {
			return nil, fmt.Errorf("listing workflow runs for %s (page %d): %w", fullName, opts.Page, err)
		}

		logRateLimit(resp, fullName+"/actions-runs", opts.Page, len(runs.WorkflowRuns))

		for _, run := range runs.WorkflowRuns {
			out = append(out, mapWorkflowRun(run))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return out, nil
}

// ListBranches returns every branch name of a repository.
func (c *Client) ListBranches(ctx context.Context, r model.Repository, token model.Token) ([]string, error) {
	client := c.clientFor(token.Value)
	opts := &gh.BranchListOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var names []string

	for {
		branches, resp, err := client.Repositories.ListBranches(ctx, r.OrgName, r.RepoName, opts)
		if err != nil {
			return nil, fmt.Errorf("listing branches for %s (page %d): %w", r.FullName(), opts.Page, err)
		}

		logRateLimit(resp, r.FullName()+"/branches", opts.Page, len(branches))

		for _, b := range branches {
			names = append(names, b.GetName())
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return names, nil
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

// mapPullRequest converts a merged go-github PullRequest to a payload record.
// The merge time is reported as updated_at, which downstream treats as the
// deployment timestamp. Lead time components are clamped at zero.
func mapPullRequest(pr *gh.PullRequest, firstCommit time.Time, commits int) pullRequest {
	created := pr.GetCreatedAt().Time
	merged := pr.GetMergedAt().Time

	var firstToOpen float64
	if !firstCommit.IsZero() && firstCommit.Before(created) {
		firstToOpen = created.Sub(firstCommit).Seconds()
	}

	var cycle float64
	if merged.After(created) {
		cycle = merged.Sub(created).Seconds()
	}

	if n := pr.GetCommits(); n > 0 {
		commits = n
	}

	return pullRequest{
		Number:            pr.GetNumber(),
		Title:             pr.GetTitle(),
		Author:            pr.GetUser().GetLogin(),
		State:             string(model.PRStateMerged),
		BaseBranch:        pr.GetBase().GetRef(),
		HeadBranch:        pr.GetHead().GetRef(),
		CreatedAt:         formatTime(created),
		UpdatedAt:         formatTime(merged),
		Commits:           commits,
		Additions:         pr.GetAdditions(),
		Deletions:         pr.GetDeletions(),
		Comments:          pr.GetComments() + pr.GetReviewComments(),
		FirstCommitToOpen: firstToOpen,
		CycleTime:         cycle,
	}
}

// mapWorkflowRun converts a go-github WorkflowRun to a payload record.
func mapWorkflowRun(run *gh.WorkflowRun) workflowRun {
	return workflowRun{
		ID:         run.GetID(),
		Name:       run.GetName(),
		HeadBranch: run.GetHeadBranch(),
		Status:     run.GetStatus(),
		Conclusion: run.GetConclusion(),
		CreatedAt:  formatTime(run.GetCreatedAt().Time),
		UpdatedAt:  formatTime(run.GetUpdatedAt().Time),
		HTMLURL:    run.GetHTMLURL(),
		Actor:      run.GetActor().GetLogin(),
		WorkflowID: run.GetWorkflowID(),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
