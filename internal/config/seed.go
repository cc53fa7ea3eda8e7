package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
)

// Seed declares the teams, repositories and tokens to provision at startup.
//
//	tokens:
//	  - id: gh-main
//	    provider: github
//	    value: ${GITHUB_TOKEN}
//	repositories:
//	  - id: api
//	    org: acme
//	    name: api
//	    token: gh-main
//	    branches: {prod: main, dev: develop}
//	teams:
//	  - id: platform
//	    name: Platform
//	    repositories: [api]
//
// Token values are expanded against the environment so secrets stay out of
// the file.
type Seed struct {
	Tokens       []SeedToken      `yaml:"tokens"`
	Repositories []SeedRepository `yaml:"repositories"`
	Teams        []SeedTeam       `yaml:"teams"`
}

// SeedToken is a provider personal access token.
type SeedToken struct {
	ID       string `yaml:"id"`
	Provider string `yaml:"provider"`
	Value    string `yaml:"value"`
	Email    string `yaml:"email"`
}

// SeedRepository is a repository to ingest.
type SeedRepository struct {
	ID           string       `yaml:"id"`
	Org          string       `yaml:"org"`
	Name         string       `yaml:"name"`
	Provider     string       `yaml:"provider"`
	Token        string       `yaml:"token"`
	CFRType      string       `yaml:"cfr_type"`
	WorkflowFile string       `yaml:"workflow_file"`
	Branches     SeedBranches `yaml:"branches"`
}

// SeedBranches maps environments to branch names.
type SeedBranches struct {
	Dev   string `yaml:"dev"`
	Stage string `yaml:"stage"`
	Prod  string `yaml:"prod"`
}

// SeedTeam groups repositories by id.
type SeedTeam struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Repositories []string `yaml:"repositories"`
}

// LoadSeed reads and validates a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes a seed document, rejecting unknown fields, and validates
// every cross reference.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	for i := range seed.Tokens {
		seed.Tokens[i].Value = os.ExpandEnv(seed.Tokens[i].Value)
	}

	if err := seed.validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

func (s *Seed) validate() error {
	var errs []error

	tokens := make(map[string]SeedToken, len(s.Tokens))
	for _, t := range s.Tokens {
		switch {
		case t.ID == "":
			errs = append(errs, errors.New("token without id"))
		case !validProvider(t.Provider):
			errs = append(errs, fmt.Errorf("token %s: unknown provider %q", t.ID, t.Provider))
		case t.Value == "":
			errs = append(errs, fmt.Errorf("token %s: empty value", t.ID))
		case model.Provider(t.Provider) == model.ProviderBitbucket && t.Email == "":
			errs = append(errs, fmt.Errorf("token %s: bitbucket tokens require an email", t.ID))
		}
		tokens[t.ID] = t
	}

	repos := make(map[string]bool, len(s.Repositories))
	for _, r := range s.Repositories {
		if r.ID == "" || r.Org == "" || r.Name == "" {
			errs = append(errs, fmt.Errorf("repository %q: id, org and name are required", r.ID))
			continue
		}
		if r.Provider != "" && !validProvider(r.Provider) {
			errs = append(errs, fmt.Errorf("repository %s: unknown provider %q", r.ID, r.Provider))
		}
		if r.CFRType != "" && r.CFRType != string(model.CFRTypePRMerge) && r.CFRType != string(model.CFRTypeCICD) {
			errs = append(errs, fmt.Errorf("repository %s: unknown cfr_type %q", r.ID, r.CFRType))
		}
		if r.Token != "" {
			if _, ok := tokens[r.Token]; !ok {
				errs = append(errs, fmt.Errorf("repository %s: unknown token %q", r.ID, r.Token))
			}
		}
		repos[r.ID] = true
	}

	for _, t := range s.Teams {
		if t.ID == "" {
			errs = append(errs, errors.New("team without id"))
			continue
		}
		for _, id := range t.Repositories {
			if !repos[id] {
				errs = append(errs, fmt.Errorf("team %s: unknown repository %q", t.ID, id))
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid seed file: %w", err)
	}
	return nil
}

func validProvider(p string) bool {
	return model.Provider(p) == model.ProviderGitHub || model.Provider(p) == model.ProviderBitbucket
}

// ModelTokens converts the declared tokens, stamped with now.
func (s *Seed) ModelTokens(now time.Time) []model.Token {
	out := make([]model.Token, 0, len(s.Tokens))
	for _, t := range s.Tokens {
		out = append(out, model.Token{
			ID:        t.ID,
			Provider:  model.Provider(t.Provider),
			Value:     t.Value,
			Email:     t.Email,
			UpdatedAt: now,
		})
	}
	return out
}

// ModelRepositories converts the declared repositories. Provider defaults to
// github and CFR type to PR_MERGE.
func (s *Seed) ModelRepositories(now time.Time) []model.Repository {
	out := make([]model.Repository, 0, len(s.Repositories))
	for _, r := range s.Repositories {
		repo := model.Repository{
			ID:           r.ID,
			OrgName:      r.Org,
			RepoName:     r.Name,
			Provider:     model.Provider(r.Provider),
			TokenID:      r.Token,
			CFRType:      model.CFRType(r.CFRType),
			WorkflowFile: r.WorkflowFile,
			Branches:     model.BranchConfig{Dev: r.Branches.Dev, Stage: r.Branches.Stage, Prod: r.Branches.Prod},
			AddedAt:      now,
		}
		if repo.Provider == "" {
			repo.Provider = model.ProviderGitHub
		}
		if repo.CFRType == "" {
			repo.CFRType = model.CFRTypePRMerge
		}
		out = append(out, repo)
	}
	return out
}

// ModelTeams converts the declared teams. A team without a name is named by its id.
func (s *Seed) ModelTeams() []model.Team {
	out := make([]model.Team, 0, len(s.Teams))
	for _, t := range s.Teams {
		name := t.Name
		if name == "" {
			name = t.ID
		}
		out = append(out, model.Team{ID: t.ID, Name: name, RepoIDs: t.Repositories})
	}
	return out
}
