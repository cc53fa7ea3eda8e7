package model

import "time"

// Repository represents a repository whose activity is ingested.
type Repository struct {
	ID            string
	OrgName       string
	RepoName      string
	Provider      Provider
	TokenID       string
	CFRType       CFRType
	WorkflowFile  string
	Branches      BranchConfig
	LastFetchedAt *time.Time
	AddedAt       time.Time
}

// FullName returns "org/repo".
func (r Repository) FullName() string {
	return r.OrgName + "/" + r.RepoName
}

// BranchConfig maps logical environments to the branch deployed from.
// Empty strings mean "not configured".
type BranchConfig struct {
	Dev   string
	Stage string
	Prod  string
}

// ForMode returns the configured branch for an environment mode, or "" for
// modes that are not environment-bound.
func (c BranchConfig) ForMode(mode BranchMode) string {
	switch mode {
	case BranchModeDev:
		return c.Dev
	case BranchModeStage:
		return c.Stage
	case BranchModeProd:
		return c.Prod
	default:
		return ""
	}
}

// RepoBranchMap maps repository ID to its branch configuration.
type RepoBranchMap map[string]BranchConfig

// Team groups repositories whose metrics are reported together.
type Team struct {
	ID      string
	Name    string
	RepoIDs []string
}

// Token holds a provider personal access token used for upstream fetches.
type Token struct {
	ID        string
	Provider  Provider
	Value     string
	Email     string // Required by Bitbucket app passwords.
	UpdatedAt time.Time
}
