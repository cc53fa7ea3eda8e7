package model

import (
	"fmt"
	"strings"
)

// PRState represents the state of a pull request as reported upstream.
// Values are upper-cased on ingest.
type PRState string

const (
	PRStateOpen   PRState = "OPEN"
	PRStateClosed PRState = "CLOSED"
	PRStateMerged PRState = "MERGED"
)

// BatchState represents the lifecycle of a FetchBatch.
type BatchState string

const (
	BatchStateProcessing BatchState = "processing"
	BatchStateSuccess    BatchState = "success"
	BatchStateFailure    BatchState = "failure"
)

// Workflow run conclusions that drive incident derivation. Any other
// conclusion (cancelled, skipped, neutral, ...) is inert.
const (
	ConclusionSuccess = "success"
	ConclusionFailure = "failure"
)

// Provider identifies the upstream VCS host a repository lives on.
type Provider string

const (
	ProviderGitHub    Provider = "github"
	ProviderBitbucket Provider = "bitbucket"
)

// CFRType selects how a repository's change failures are sourced upstream.
type CFRType string

const (
	CFRTypePRMerge CFRType = "PR_MERGE"
	CFRTypeCICD    CFRType = "CI-CD"
)

// BranchMode selects which configured environment branch gates inclusion in metrics.
type BranchMode string

const (
	BranchModeProd   BranchMode = "prod"
	BranchModeStage  BranchMode = "stage"
	BranchModeDev    BranchMode = "dev"
	BranchModeAll    BranchMode = "all"
	BranchModeCustom BranchMode = "custom"
)

// ParseBranchMode parses a branch mode case-insensitively. An empty string
// yields BranchModeAll.
func ParseBranchMode(s string) (BranchMode, error) {
	switch mode := BranchMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case "":
		return BranchModeAll, nil
	case BranchModeProd, BranchModeStage, BranchModeDev, BranchModeAll, BranchModeCustom:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown branch mode %q", s)
	}
}

// FrequencyUnit is the display granularity chosen for deployment frequency.
type FrequencyUnit string

const (
	FrequencyDay   FrequencyUnit = "day"
	FrequencyWeek  FrequencyUnit = "week"
	FrequencyMonth FrequencyUnit = "month"
)
