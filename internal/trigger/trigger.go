// Package trigger decides whether a repository event starts a workflow run.
package trigger

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/groblegark/relay/internal/model"
	"github.com/groblegark/relay/internal/workflow"
)

// Event is one repository notification delivered to the trigger evaluator.
// For push events Branch is the pushed branch; for pull_request events it is
// the merge target.
type Event struct {
	Kind      model.EventKind `json:"kind"`
	Branch    string          `json:"branch"`
	CommitSHA string          `json:"commit_sha"`
	Actor     string          `json:"actor,omitempty"`
}

// NormalizeBranch strips the refs/heads/ ref prefix, leaving the bare branch
// name. Branches that already arrive bare pass through unchanged.
func NormalizeBranch(branch string) string {
	return strings.TrimPrefix(branch, "refs/heads/")
}

// Match reports whether the workflow definition triggers for the event.
//
// Push events match when the workflow listens to push and the pushed branch
// matches the configured branch globs (no globs = every branch).
// Pull request events match only when the workflow listens to pull_request
// and the target branch is the protected default branch.
// A non-match is a no-op, never an error.
func Match(def workflow.Definition, evt Event, defaultBranch string) bool {
	switch evt.Kind {
	case model.EventPush:
		if def.On.Push == nil {
			return false
		}
		return matchesBranch(def.On.Push.Branches, evt.Branch)
	case model.EventPullRequest:
		if def.On.PullRequest == nil {
			return false
		}
		if NormalizeBranch(evt.Branch) != NormalizeBranch(defaultBranch) {
			return false
		}
		return matchesBranch(def.On.PullRequest.Branches, evt.Branch)
	}
	return false
}

// matchesBranch reports whether branch matches any of the glob patterns.
// The incoming branch may be a bare name or a refs/heads/ ref; both forms
// are tried against each pattern, so patterns written either way work.
func matchesBranch(patterns []string, branch string) bool {
	if len(patterns) == 0 {
		return true
	}
	bare := NormalizeBranch(branch)
	if bare == "" {
		return false
	}

	candidates := []string{bare, "refs/heads/" + bare}

	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		for _, candidate := range candidates {
			matched, err := doublestar.Match(pattern, candidate)
			if err != nil {
				continue
			}
			if matched {
				return true
			}
		}
	}
	return false
}
