package gate

import (
	"testing"

	"github.com/groblegark/relay/internal/model"
)

func basePolicy() *model.BranchProtection {
	return &model.BranchProtection{
		Branch:            "main",
		RequiredChecks:    []string{"test"},
		RequiredApprovals: 1,
		DismissStale:      true,
	}
}

func approval(branch, sha, reviewer string) *model.Review {
	return &model.Review{Branch: branch, CommitSHA: sha, Reviewer: reviewer}
}

func TestEvaluateAllow(t *testing.T) {
	decision := Evaluate(
		basePolicy(),
		map[string]model.StageOutcome{"test": model.StageSuccess},
		[]*model.Review{approval("main", "abc1234", "amy")},
		"abc1234", "",
	)
	if !decision.Allowed {
		t.Fatalf("expected allow, got reasons %+v", decision.Reasons)
	}
	if decision.Approvals != 1 {
		t.Errorf("Approvals = %d, want 1", decision.Approvals)
	}
}

func TestEvaluateDenyZeroApprovals(t *testing.T) {
	// Tests pass, zero approvals, one required: deny.
	decision := Evaluate(
		basePolicy(),
		map[string]model.StageOutcome{"test": model.StageSuccess},
		nil,
		"abc1234", "",
	)
	if decision.Allowed {
		t.Fatal("expected deny")
	}
	if len(decision.Reasons) != 1 || decision.Reasons[0].Code != model.DenyApprovalsShort {
		t.Errorf("reasons = %+v, want one approvals_short", decision.Reasons)
	}
}

func TestEvaluateDenyFailedCheck(t *testing.T) {
	decision := Evaluate(
		basePolicy(),
		map[string]model.StageOutcome{"test": model.StageFailure},
		[]*model.Review{approval("main", "abc1234", "amy")},
		"abc1234", "",
	)
	if decision.Allowed {
		t.Fatal("expected deny")
	}
	if decision.Reasons[0].Code != model.DenyCheckFailed {
		t.Errorf("reason code = %s, want %s", decision.Reasons[0].Code, model.DenyCheckFailed)
	}
}

func TestEvaluateDenyMissingCheck(t *testing.T) {
	for _, tc := range []struct {
		name   string
		checks map[string]model.StageOutcome
	}{
		{"NoReport", map[string]model.StageOutcome{}},
		{"Pending", map[string]model.StageOutcome{"test": model.StagePending}},
		{"Running", map[string]model.StageOutcome{"test": model.StageRunning}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			decision := Evaluate(basePolicy(), tc.checks,
				[]*model.Review{approval("main", "abc1234", "amy")}, "abc1234", "")
			if decision.Allowed {
				t.Fatal("expected deny")
			}
			if decision.Reasons[0].Code != model.DenyCheckMissing {
				t.Errorf("reason code = %s, want %s", decision.Reasons[0].Code, model.DenyCheckMissing)
			}
		})
	}
}

func TestEvaluateDismissStale(t *testing.T) {
	// Approval granted on an older commit, then a new commit pushed: the
	// effective approval count resets to zero.
	decision := Evaluate(
		basePolicy(),
		map[string]model.StageOutcome{"test": model.StageSuccess},
		[]*model.Review{approval("main", "old0001", "amy")},
		"new0002", "",
	)
	if decision.Allowed {
		t.Fatal("expected deny: approval is stale")
	}
	if decision.Approvals != 0 {
		t.Errorf("Approvals = %d, want 0 after stale dismissal", decision.Approvals)
	}

	// Without dismiss-stale the old approval still counts.
	policy := basePolicy()
	policy.DismissStale = false
	decision = Evaluate(
		policy,
		map[string]model.StageOutcome{"test": model.StageSuccess},
		[]*model.Review{approval("main", "old0001", "amy")},
		"new0002", "",
	)
	if !decision.Allowed {
		t.Fatalf("expected allow without dismiss-stale, got %+v", decision.Reasons)
	}
}

func TestEvaluateDistinctReviewers(t *testing.T) {
	policy := basePolicy()
	policy.RequiredApprovals = 2

	// Two approvals from the same reviewer count once.
	decision := Evaluate(
		policy,
		map[string]model.StageOutcome{"test": model.StageSuccess},
		[]*model.Review{
			approval("main", "abc1234", "amy"),
			approval("main", "abc1234", "amy"),
		},
		"abc1234", "",
	)
	if decision.Allowed || decision.Approvals != 1 {
		t.Errorf("Approvals = %d allowed = %v, want 1/deny", decision.Approvals, decision.Allowed)
	}

	decision = Evaluate(
		policy,
		map[string]model.StageOutcome{"test": model.StageSuccess},
		[]*model.Review{
			approval("main", "abc1234", "amy"),
			approval("main", "abc1234", "bob"),
		},
		"abc1234", "",
	)
	if !decision.Allowed {
		t.Errorf("expected allow with two distinct reviewers, got %+v", decision.Reasons)
	}
}

func TestEvaluateIgnoresOtherBranches(t *testing.T) {
	decision := Evaluate(
		basePolicy(),
		map[string]model.StageOutcome{"test": model.StageSuccess},
		[]*model.Review{approval("develop", "abc1234", "amy")},
		"abc1234", "",
	)
	if decision.Allowed {
		t.Fatal("approval on another branch must not count")
	}
}

func TestEvaluateRestrictedPushers(t *testing.T) {
	policy := basePolicy()
	policy.RequiredApprovals = 0
	policy.RestrictPushers = []string{"release-bot"}
	checks := map[string]model.StageOutcome{"test": model.StageSuccess}

	if d := Evaluate(policy, checks, nil, "abc1234", "release-bot"); !d.Allowed {
		t.Errorf("listed pusher should be allowed, got %+v", d.Reasons)
	}
	if d := Evaluate(policy, checks, nil, "abc1234", "mallory"); d.Allowed {
		t.Error("unlisted pusher should be denied")
	}
	if d := Evaluate(policy, checks, nil, "abc1234", ""); d.Allowed {
		t.Error("unknown pusher should be denied when the list is set")
	}
}

// Adding an unmet required check can flip allow to deny but never the
// reverse.
func TestEvaluateMonotonic(t *testing.T) {
	policy := basePolicy()
	checks := map[string]model.StageOutcome{"test": model.StageSuccess}
	reviews := []*model.Review{approval("main", "abc1234", "amy")}

	before := Evaluate(policy, checks, reviews, "abc1234", "")
	if !before.Allowed {
		t.Fatalf("precondition: expected allow, got %+v", before.Reasons)
	}

	policy.RequiredChecks = append(policy.RequiredChecks, "lint")
	after := Evaluate(policy, checks, reviews, "abc1234", "")
	if after.Allowed {
		t.Fatal("adding an unmet required check must deny")
	}

	// And a denied decision stays denied when another unmet check is added.
	policy.RequiredChecks = append(policy.RequiredChecks, "e2e")
	again := Evaluate(policy, checks, reviews, "abc1234", "")
	if again.Allowed {
		t.Fatal("deny must never flip to allow by adding checks")
	}
}
