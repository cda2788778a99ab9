package model

import (
	"fmt"
	"regexp"
	"strings"
)

// commitSHAPattern matches abbreviated or full hex commit identifiers.
var commitSHAPattern = regexp.MustCompile(`^[0-9a-f]{7,64}$`)

// ValidateRun checks the fields of a workflow run before it is persisted.
func ValidateRun(r *WorkflowRun) error {
	if r.ID == "" {
		return fmt.Errorf("run: id is required")
	}
	if r.Workflow == "" {
		return fmt.Errorf("run %s: workflow is required", r.ID)
	}
	if !r.Event.IsValid() {
		return fmt.Errorf("run %s: invalid event kind %q", r.ID, r.Event)
	}
	if err := ValidateBranchName(r.Branch); err != nil {
		return fmt.Errorf("run %s: %w", r.ID, err)
	}
	if err := ValidateCommitSHA(r.CommitSHA); err != nil {
		return fmt.Errorf("run %s: %w", r.ID, err)
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("run %s: invalid status %q", r.ID, r.Status)
	}
	return nil
}

// ValidateBranchName rejects empty or malformed git branch names.
func ValidateBranchName(branch string) error {
	if branch == "" {
		return fmt.Errorf("branch is required")
	}
	if strings.HasPrefix(branch, "/") || strings.HasSuffix(branch, "/") {
		return fmt.Errorf("invalid branch name %q", branch)
	}
	if strings.ContainsAny(branch, " ~^:?[\\") || strings.Contains(branch, "..") {
		return fmt.Errorf("invalid branch name %q", branch)
	}
	return nil
}

// ValidateCommitSHA rejects identifiers that are not hex commit hashes.
func ValidateCommitSHA(sha string) error {
	if sha == "" {
		return fmt.Errorf("commit_sha is required")
	}
	if !commitSHAPattern.MatchString(sha) {
		return fmt.Errorf("invalid commit sha %q", sha)
	}
	return nil
}

// ValidateProtection checks a branch protection policy.
func ValidateProtection(p *BranchProtection) error {
	if err := ValidateBranchName(p.Branch); err != nil {
		return fmt.Errorf("protection: %w", err)
	}
	if p.RequiredApprovals < 0 {
		return fmt.Errorf("protection %s: required_approvals must be >= 0", p.Branch)
	}
	seen := make(map[string]struct{}, len(p.RequiredChecks))
	for _, check := range p.RequiredChecks {
		if check == "" {
			return fmt.Errorf("protection %s: empty required check name", p.Branch)
		}
		if _, dup := seen[check]; dup {
			return fmt.Errorf("protection %s: duplicate required check %q", p.Branch, check)
		}
		seen[check] = struct{}{}
	}
	return nil
}
