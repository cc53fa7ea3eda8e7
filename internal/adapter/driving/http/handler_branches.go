package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/parthraninga/DORA-Metrics/internal/application"
	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
)

var errNoBranchLister = errors.New("provider does not support branch listing")

// ListBranches returns the branches of a repository as reported by its provider.
func (h *Handler) ListBranches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	repoID := r.PathValue("id")

	repo, err := h.repoStore.Get(ctx, repoID)
	if err != nil {
		h.writeServiceError(w, err, "failed to get repository", "repo_id", repoID)
		return
	}

	lister, ok := h.listers[repo.Provider]
	if !ok {
		writeError(w, http.StatusBadRequest, errNoBranchLister.Error())
		return
	}

	if repo.TokenID == "" {
		writeError(w, http.StatusBadRequest, application.ErrNoToken.Error())
		return
	}
	token, err := h.tokenStore.Get(ctx, repo.TokenID)
	if err != nil {
		h.writeServiceError(w, err, "failed to get token", "repo_id", repoID)
		return
	}

	branches, err := lister.ListBranches(ctx, *repo, *token)
	if err != nil {
		h.logger.Error("failed to list branches", "repo", repo.FullName(), "error", err)
		writeError(w, http.StatusBadGateway, "upstream branch listing failed")
		return
	}
	if branches == nil {
		branches = []string{}
	}

	writeJSON(w, http.StatusOK, BranchesResponse{
		RepoID:   repo.ID,
		Branches: branches,
		Config:   toBranchConfigResponse(repo.Branches),
	})
}

// SetBranches replaces the environment branch configuration of a repository.
func (h *Handler) SetBranches(w http.ResponseWriter, r *http.Request) {
	var req BranchConfigResponse
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	repoID := r.PathValue("id")
	cfg := model.BranchConfig{Dev: req.Dev, Stage: req.Stage, Prod: req.Prod}
	if err := h.repoStore.SetBranches(r.Context(), repoID, cfg); err != nil {
		h.writeServiceError(w, err, "failed to set branches", "repo_id", repoID)
		return
	}

	h.logger.Info("branch configuration updated", "repo_id", repoID,
		"dev", cfg.Dev, "stage", cfg.Stage, "prod", cfg.Prod)

	writeJSON(w, http.StatusOK, toBranchConfigResponse(cfg))
}
