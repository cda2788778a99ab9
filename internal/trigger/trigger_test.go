package trigger

import (
	"testing"

	"github.com/groblegark/relay/internal/model"
	"github.com/groblegark/relay/internal/workflow"
)

func defWith(push, pr *workflow.Rule) workflow.Definition {
	return workflow.Definition{
		Name: "ci",
		On:   workflow.Trigger{Push: push, PullRequest: pr},
		Stages: []workflow.Stage{
			{Name: "test", Steps: []workflow.Step{{Run: "true"}}},
		},
	}
}

func TestMatchPush(t *testing.T) {
	for _, tc := range []struct {
		name     string
		patterns []string
		branch   string
		want     bool
	}{
		{"NoPatternsMatchesAnyBranch", nil, "feature/x", true},
		{"NoPatternsMatchesDefault", nil, "main", true},
		{"ExactPattern", []string{"main"}, "main", true},
		{"ExactPatternMiss", []string{"main"}, "feature/x", false},
		{"GlobPattern", []string{"release/*"}, "release/1.2", true},
		{"GlobPatternMiss", []string{"release/*"}, "feature/x", false},
		{"DoublestarMatchesAll", []string{"**"}, "feature/x", true},
		{"RefsHeadsPattern", []string{"refs/heads/main"}, "main", true},
		{"RefsHeadsBranchBarePattern", []string{"main"}, "refs/heads/main", true},
		{"RefsHeadsBranchGlobPattern", []string{"release/*"}, "refs/heads/release/1.2", true},
		{"RefsHeadsBranchMiss", []string{"main"}, "refs/heads/feature/x", false},
		{"EmptyBranch", []string{"main"}, "", false},
		{"EmptyRef", []string{"main"}, "refs/heads/", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			def := defWith(&workflow.Rule{Branches: tc.patterns}, nil)
			evt := Event{Kind: model.EventPush, Branch: tc.branch, CommitSHA: "abc1234"}
			if got := Match(def, evt, "main"); got != tc.want {
				t.Errorf("Match = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMatchPushNotConfigured(t *testing.T) {
	def := defWith(nil, &workflow.Rule{})
	evt := Event{Kind: model.EventPush, Branch: "main", CommitSHA: "abc1234"}
	if Match(def, evt, "main") {
		t.Error("push should not match a workflow without a push trigger")
	}
}

func TestMatchPullRequest(t *testing.T) {
	for _, tc := range []struct {
		name   string
		target string
		want   bool
	}{
		{"TargetIsDefaultBranch", "main", true},
		{"TargetIsDefaultBranchRef", "refs/heads/main", true},
		{"TargetIsFeatureBranch", "feature/x", false},
		{"TargetIsFeatureBranchRef", "refs/heads/feature/x", false},
		{"TargetIsOtherLongLived", "develop", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			def := defWith(nil, &workflow.Rule{Branches: []string{"main"}})
			evt := Event{Kind: model.EventPullRequest, Branch: tc.target, CommitSHA: "abc1234"}
			if got := Match(def, evt, "main"); got != tc.want {
				t.Errorf("Match(target=%s) = %v, want %v", tc.target, got, tc.want)
			}
		})
	}
}

func TestMatchPullRequestNotConfigured(t *testing.T) {
	def := defWith(&workflow.Rule{}, nil)
	evt := Event{Kind: model.EventPullRequest, Branch: "main", CommitSHA: "abc1234"}
	if Match(def, evt, "main") {
		t.Error("pull_request should not match a workflow without a pull_request trigger")
	}
}

func TestNormalizeBranch(t *testing.T) {
	for _, tc := range []struct {
		in, want string
	}{
		{"main", "main"},
		{"refs/heads/main", "main"},
		{"refs/heads/release/1.2", "release/1.2"},
		{"refs/heads/", ""},
		{"", ""},
	} {
		if got := NormalizeBranch(tc.in); got != tc.want {
			t.Errorf("NormalizeBranch(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMatchUnknownEventKind(t *testing.T) {
	def := defWith(&workflow.Rule{}, &workflow.Rule{})
	evt := Event{Kind: "tag", Branch: "main", CommitSHA: "abc1234"}
	if Match(def, evt, "main") {
		t.Error("unknown event kinds must never match")
	}
}
