// Package identity derives stable record identifiers for upstream data that
// does not carry one, so re-ingesting the same logical event never creates a
// second row.
package identity

import (
	"crypto/sha1" //nolint:gosec // Used for id derivation, not for security.
	"strconv"

	"github.com/google/uuid"
)

// Namespaces partition natural keys by record kind.
const (
	NamespacePullRequest = "pull_request"
	NamespaceWorkflowRun = "workflow_run"
	NamespaceIncident    = "incident"
)

// Resolve returns a deterministic UUID for naturalKey within namespace. The
// SHA-1 digest of namespace||naturalKey supplies the bits; the version nibble
// is forced to 5 and the variant to RFC 4122 so the result always parses as a
// UUID. The same inputs yield the same id in every process.
func Resolve(namespace, naturalKey string) string {
	sum := sha1.Sum([]byte(namespace + naturalKey)) //nolint:gosec // See import comment.

	var id uuid.UUID
	copy(id[:], sum[:16])
	id[6] = (id[6] & 0x0f) | 0x50
	id[8] = (id[8] & 0x3f) | 0x80

	return id.String()
}

// StableID returns candidate unchanged when it is already a UUID, otherwise
// the resolved id for naturalKey. ok is false when neither is usable; the
// caller must drop the record rather than invent an id.
func StableID(namespace, candidate, naturalKey string) (id string, ok bool) {
	if IsUUID(candidate) {
		return candidate, true
	}
	if naturalKey == "" {
		return "", false
	}
	return Resolve(namespace, naturalKey), true
}

// IsUUID reports whether s is a canonical 36-character UUID string.
func IsUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// RunKey returns the natural key of a workflow run within a repository.
// Upstream run numbers are only unique per repository.
func RunKey(repoID, upstreamKey string) string {
	return repoID + ":" + upstreamKey
}

// IncidentKey returns the natural key of the incident opened by a workflow
// run within a repository. Provider keys of the form "workflow-<run id>"
// scoped with ScopedIncidentKey resolve to the same key.
func IncidentKey(repoID string, runID int64) string {
	return ScopedIncidentKey(repoID, "workflow-"+strconv.FormatInt(runID, 10))
}

// ScopedIncidentKey scopes a provider incident key to a repository.
func ScopedIncidentKey(repoID, providerKey string) string {
	return repoID + ":" + providerKey
}

// PullRequestKey returns the natural key of a pull request within a repository.
func PullRequestKey(repoID string, number int) string {
	return repoID + "#" + strconv.Itoa(number)
}
