// Package lambda implements the Fetcher port against the remote fetch
// service, one HTTP endpoint per provider that returns a repository
// activity payload for a time window.
package lambda

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
	"github.com/parthraninga/DORA-Metrics/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Fetcher = (*Client)(nil)

// windowLayout is the second-precision UTC layout the fetch service expects.
const windowLayout = "2006-01-02T15:04:05Z"

// maxBodyBytes bounds a fetch response read into memory.
const maxBodyBytes = 64 << 20

// ErrResponseTooLarge is returned when a fetch response exceeds maxBodyBytes.
// A truncated body would no longer parse, so it is never returned.
var ErrResponseTooLarge = errors.New("fetch response too large")

// Request types understood by the fetch service.
const (
	typePRMerge = 1
	typeCICD    = 2
)

// Client posts fetch requests to the provider's fetch service URL.
type Client struct {
	httpClient *http.Client
	urls       map[model.Provider]string
}

// NewClient creates a Client. A provider whose URL is empty cannot be fetched.
func NewClient(httpClient *http.Client, githubURL, bitbucketURL string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}

	urls := make(map[model.Provider]string, 2)
	if githubURL != "" {
		urls[model.ProviderGitHub] = githubURL
	}
	if bitbucketURL != "" {
		urls[model.ProviderBitbucket] = bitbucketURL
	}

	return &Client{httpClient: httpClient, urls: urls}
}

// Supports reports whether a fetch URL is configured for provider.
func (c *Client) Supports(provider model.Provider) bool {
	_, ok := c.urls[provider]
	return ok
}

type repoRef struct {
	OrgName        string `json:"org_name"`
	RepoName       string `json:"repo_name"`
	DeploymentType string `json:"deployment_type"`
}

type fetchBody struct {
	GitHubToken    string    `json:"github_pat_token,omitempty"`
	BitbucketToken string    `json:"bitbucket_pat_token,omitempty"`
	Email          string    `json:"email,omitempty"`
	Repos          []repoRef `json:"repos"`
	FromTime       string    `json:"from_time"`
	ToTime         string    `json:"to_time"`
	Type           int       `json:"type"`
	WorkflowFile   string    `json:"workflow_file,omitempty"`
}

// Fetch posts the repository and window to the fetch service and returns
// its status and body unchanged. Only transport failures are errors.
func (c *Client) Fetch(ctx context.Context, req driven.FetchRequest) (*driven.FetchResponse, error) {
	provider := req.Repo.Provider
	if provider == "" {
		provider = model.ProviderGitHub
	}

	url, ok := c.urls[provider]
	if !ok {
		return nil, fmt.Errorf("no fetch service URL for provider %q", provider)
	}

	bodyBytes, err := json.Marshal(newFetchBody(req, provider))
	if err != nil {
		return nil, fmt.Errorf("encoding fetch request for %s: %w", req.Repo.FullName(), err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating fetch request for %s: %w", req.Repo.FullName(), err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	slog.Info("calling fetch service",
		"provider", provider,
		"repo", req.Repo.FullName(),
		"from", req.From.UTC().Format(windowLayout),
		"to", req.To.UTC().Format(windowLayout),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling fetch service for %s: %w", req.Repo.FullName(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := readBody(resp.Body, maxBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("reading fetch response for %s: %w", req.Repo.FullName(), err)
	}

	return &driven.FetchResponse{StatusCode: resp.StatusCode, Body: body}, nil
}

// readBody reads r fully, failing instead of truncating past limit bytes.
func readBody(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, limit)
	}
	return body, nil
}

func newFetchBody(req driven.FetchRequest, provider model.Provider) fetchBody {
	body := fetchBody{
		Repos: []repoRef{{
			OrgName:        req.Repo.OrgName,
			RepoName:       req.Repo.RepoName,
			DeploymentType: string(model.CFRTypePRMerge),
		}},
		FromTime: req.From.UTC().Format(windowLayout),
		ToTime:   req.To.UTC().Format(windowLayout),
		Type:     typePRMerge,
	}

	if req.Repo.CFRType == model.CFRTypeCICD {
		body.Type = typeCICD
		body.WorkflowFile = req.Repo.WorkflowFile
	}

	if provider == model.ProviderBitbucket {
		body.BitbucketToken = req.Token.Value
		body.Email = req.Token.Email
	} else {
		body.GitHubToken = req.Token.Value
	}

	return body
}
