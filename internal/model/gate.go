package model

import "time"

// BranchProtection holds the merge-gate policy for one protected branch.
// Evaluation is stateless: the policy is read, combined with the current
// check and review state, and produces a Decision.
type BranchProtection struct {
	Branch            string   `json:"branch"`
	RequiredChecks    []string `json:"required_checks"`
	RequiredApprovals int      `json:"required_approvals"`
	DismissStale      bool     `json:"dismiss_stale"`
	RestrictPushers   []string `json:"restrict_pushers,omitempty"`
	AllowForcePush    bool     `json:"allow_force_push"`
	AllowDeletion     bool     `json:"allow_deletion"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Review is an approving review granted on a specific commit of a branch.
type Review struct {
	ID        int64     `json:"id"`
	Branch    string    `json:"branch"`
	CommitSHA string    `json:"commit_sha"`
	Reviewer  string    `json:"reviewer"`
	CreatedAt time.Time `json:"created_at"`
}

// Deny reason codes reported by gate evaluation.
const (
	DenyCheckMissing     = "check_missing"
	DenyCheckFailed      = "check_failed"
	DenyApprovalsShort   = "approvals_short"
	DenyPusherRestricted = "pusher_restricted"
)

// DenyReason explains one unmet gate requirement.
type DenyReason struct {
	Code    string `json:"code"`
	Subject string `json:"subject,omitempty"` // check name or pusher, depending on code
	Message string `json:"message"`
}

// Decision is the result of evaluating a branch protection policy.
type Decision struct {
	Allowed   bool         `json:"allowed"`
	Branch    string       `json:"branch"`
	CommitSHA string       `json:"commit_sha"`
	Approvals int          `json:"approvals"` // approvals counted after stale dismissal
	Reasons   []DenyReason `json:"reasons,omitempty"`
}
