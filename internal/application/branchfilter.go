package application

import (
	"errors"
	"fmt"

	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
)

// ErrInvalidBranchMode is returned for a branch mode outside prod, stage, dev, all and custom.
var ErrInvalidBranchMode = errors.New("invalid branch mode")

// BranchScoped is a row attributable to a repository branch.
type BranchScoped interface {
	RepoKey() string
	BranchName() string
}

// ParseBranchMode wraps model.ParseBranchMode with ErrInvalidBranchMode.
func ParseBranchMode(s string) (model.BranchMode, error) {
	mode, err := model.ParseBranchMode(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidBranchMode, s)
	}
	return mode, nil
}

// FilterByBranchMode narrows rows to those counted under mode.
//
//   - all passes every row through.
//   - custom keeps rows whose branch is in custom; an empty list passes everything.
//   - prod, stage and dev keep a row only when its repository has a non-empty
//     branch configured for that environment and the row's branch equals it
//     exactly. Repositories without one contribute nothing.
//
// The result is a new slice; filtering it again with the same arguments
// returns an identical set.
func FilterByBranchMode[T BranchScoped](rows []T, mode model.BranchMode, branches model.RepoBranchMap, custom []string) []T {
	switch mode {
	case model.BranchModeAll, "":
		return append([]T(nil), rows...)
	case model.BranchModeCustom:
		if len(custom) == 0 {
			return append([]T(nil), rows...)
		}
		allowed := make(map[string]bool, len(custom))
		for _, b := range custom {
			allowed[b] = true
		}
		return filterRows(rows, func(row T) bool {
			return allowed[row.BranchName()]
		})
	default:
		return filterRows(rows, func(row T) bool {
			want := branches[row.RepoKey()].ForMode(mode)
			return want != "" && row.BranchName() == want
		})
	}
}

func filterRows[T any](rows []T, keep func(T) bool) []T {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		if keep(row) {
			out = append(out, row)
		}
	}
	return out
}
