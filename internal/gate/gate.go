// Package gate evaluates branch protection policy against check and review
// state. Evaluation is pure: it reads inputs and returns a decision, nothing
// else.
package gate

import (
	"fmt"
	"sort"

	"github.com/groblegark/relay/internal/model"
)

// Evaluate decides whether a merge into the protected branch is allowed.
//
// The merge is allowed iff every required check reports success for the head
// commit, the approval count meets the policy minimum, and the pusher is
// permitted. Under the dismiss-stale policy only approvals granted on the
// current head commit count; a new commit therefore resets the effective
// approval count to zero.
//
// checks maps check name to the outcome published for headSHA. reviews are
// the approving reviews recorded for the branch, across commits.
func Evaluate(policy *model.BranchProtection, checks map[string]model.StageOutcome, reviews []*model.Review, headSHA, pusher string) model.Decision {
	decision := model.Decision{
		Branch:    policy.Branch,
		CommitSHA: headSHA,
	}

	// Required checks, in stable order.
	required := append([]string(nil), policy.RequiredChecks...)
	sort.Strings(required)
	for _, name := range required {
		outcome, ok := checks[name]
		switch {
		case !ok || outcome == model.StagePending || outcome == model.StageRunning:
			decision.Reasons = append(decision.Reasons, model.DenyReason{
				Code:    model.DenyCheckMissing,
				Subject: name,
				Message: fmt.Sprintf("required check %q has not reported success", name),
			})
		case outcome != model.StageSuccess:
			decision.Reasons = append(decision.Reasons, model.DenyReason{
				Code:    model.DenyCheckFailed,
				Subject: name,
				Message: fmt.Sprintf("required check %q reported %s", name, outcome),
			})
		}
	}

	// Approvals: distinct reviewers, stale ones dismissed when configured.
	decision.Approvals = countApprovals(policy, reviews, headSHA)
	if decision.Approvals < policy.RequiredApprovals {
		decision.Reasons = append(decision.Reasons, model.DenyReason{
			Code: model.DenyApprovalsShort,
			Message: fmt.Sprintf("%d of %d required approvals",
				decision.Approvals, policy.RequiredApprovals),
		})
	}

	// Restricted pushers.
	if len(policy.RestrictPushers) > 0 && !contains(policy.RestrictPushers, pusher) {
		decision.Reasons = append(decision.Reasons, model.DenyReason{
			Code:    model.DenyPusherRestricted,
			Subject: pusher,
			Message: fmt.Sprintf("pusher %q is not in the allowed list", pusher),
		})
	}

	decision.Allowed = len(decision.Reasons) == 0
	return decision
}

// countApprovals counts distinct approving reviewers. When dismiss-stale is
// set, reviews granted on a commit other than headSHA are ignored.
func countApprovals(policy *model.BranchProtection, reviews []*model.Review, headSHA string) int {
	seen := make(map[string]struct{})
	for _, review := range reviews {
		if review.Branch != policy.Branch {
			continue
		}
		if policy.DismissStale && review.CommitSHA != headSHA {
			continue
		}
		seen[review.Reviewer] = struct{}{}
	}
	return len(seen)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
