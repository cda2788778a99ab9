package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/groblegark/relay/internal/model"
	"github.com/groblegark/relay/internal/ui"
	"github.com/groblegark/relay/internal/workflow"
)

const timeFormat = "2006-01-02 15:04:05"

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func renderStatus(s model.RunStatus) string {
	switch s {
	case model.RunPassed:
		return ui.RenderGood(string(s))
	case model.RunFailed:
		return ui.RenderBad(string(s))
	default:
		return string(s)
	}
}

func renderOutcome(o model.StageOutcome) string {
	switch o {
	case model.StageSuccess:
		return ui.RenderGood(string(o))
	case model.StageFailure:
		return ui.RenderBad(string(o))
	case model.StageSkipped:
		return ui.RenderMuted(string(o))
	default:
		return string(o)
	}
}

func printRunTable(run *model.WorkflowRun) {
	fmt.Printf("ID:          %s\n", run.ID)
	fmt.Printf("Workflow:    %s\n", run.Workflow)
	fmt.Printf("Event:       %s\n", run.Event)
	fmt.Printf("Branch:      %s\n", run.Branch)
	fmt.Printf("Commit:      %s\n", run.CommitSHA)
	fmt.Printf("Status:      %s\n", renderStatus(run.Status))
	if run.CreatedBy != "" {
		fmt.Printf("Created By:  %s\n", run.CreatedBy)
	}
	if !run.CreatedAt.IsZero() {
		fmt.Printf("Created At:  %s\n", run.CreatedAt.Format(timeFormat))
	}
	if run.StartedAt != nil {
		fmt.Printf("Started At:  %s\n", run.StartedAt.Format(timeFormat))
	}
	if run.FinishedAt != nil {
		fmt.Printf("Finished At: %s\n", run.FinishedAt.Format(timeFormat))
	}
	if len(run.Stages) > 0 {
		fmt.Println("\nStages:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  NAME\tOUTCOME\tLOG")
		for _, sr := range run.Stages {
			fmt.Fprintf(w, "  %s\t%s\t%s\n", sr.Name, renderOutcome(sr.Outcome), sr.LogRef)
		}
		w.Flush()
	}
}

func printRunListTable(runs []*model.WorkflowRun, total int) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tWORKFLOW\tEVENT\tBRANCH\tCOMMIT\tSTATUS\tCREATED")
	for _, run := range runs {
		sha := run.CommitSHA
		if len(sha) > 10 {
			sha = sha[:10]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			run.ID,
			run.Workflow,
			run.Event,
			run.Branch,
			sha,
			renderStatus(run.Status),
			run.CreatedAt.Format(timeFormat),
		)
	}
	w.Flush()
	fmt.Printf("\n%d runs (%d total)\n", len(runs), total)
}

func printEventListTable(evts []*model.Event) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTOPIC\tACTOR\tPAYLOAD")
	for _, e := range evts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.CreatedAt.Format(timeFormat),
			e.Topic,
			e.Actor,
			string(e.Payload),
		)
	}
	w.Flush()
}

func printDecision(d *model.Decision) {
	verdict := ui.RenderGood("allowed")
	if !d.Allowed {
		verdict = ui.RenderBad("denied")
	}
	fmt.Printf("Branch:    %s\n", d.Branch)
	fmt.Printf("Commit:    %s\n", d.CommitSHA)
	fmt.Printf("Approvals: %d\n", d.Approvals)
	fmt.Printf("Decision:  %s\n", verdict)
	for _, r := range d.Reasons {
		fmt.Printf("  - [%s] %s\n", r.Code, r.Message)
	}
}

func printProtectionTable(p *model.BranchProtection) {
	fmt.Printf("Branch:             %s\n", p.Branch)
	fmt.Printf("Required Checks:    %s\n", strings.Join(p.RequiredChecks, ", "))
	fmt.Printf("Required Approvals: %d\n", p.RequiredApprovals)
	fmt.Printf("Dismiss Stale:      %t\n", p.DismissStale)
	if len(p.RestrictPushers) > 0 {
		fmt.Printf("Restrict Pushers:   %s\n", strings.Join(p.RestrictPushers, ", "))
	}
	fmt.Printf("Allow Force Push:   %t\n", p.AllowForcePush)
	fmt.Printf("Allow Deletion:     %t\n", p.AllowDeletion)
}

func printProtectionListTable(ps []*model.BranchProtection) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BRANCH\tCHECKS\tAPPROVALS\tDISMISS STALE\tPUSHERS")
	for _, p := range ps {
		fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%s\n",
			p.Branch,
			strings.Join(p.RequiredChecks, ","),
			p.RequiredApprovals,
			p.DismissStale,
			strings.Join(p.RestrictPushers, ","),
		)
	}
	w.Flush()
}

func printReviewListTable(reviews []*model.Review) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REVIEWER\tCOMMIT\tCREATED")
	for _, r := range reviews {
		sha := r.CommitSHA
		if len(sha) > 10 {
			sha = sha[:10]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Reviewer, sha, r.CreatedAt.Format(timeFormat))
	}
	w.Flush()
}

func printArtifactTable(a *model.Artifact) {
	fmt.Printf("ID:          %s\n", a.ID)
	fmt.Printf("Run:         %s\n", a.RunID)
	fmt.Printf("Name:        %s\n", a.Name)
	fmt.Printf("Size:        %d bytes\n", a.SizeBytes)
	fmt.Printf("Storage Key: %s\n", a.StorageKey)
	fmt.Printf("Created At:  %s\n", a.CreatedAt.Format(timeFormat))
	fmt.Printf("Expires At:  %s\n", a.ExpiresAt.Format(timeFormat))
}

func printArtifactListTable(artifacts []*model.Artifact) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tRUN\tNAME\tSIZE\tEXPIRES")
	for _, a := range artifacts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			a.ID,
			a.RunID,
			a.Name,
			a.SizeBytes,
			a.ExpiresAt.Format(timeFormat),
		)
	}
	w.Flush()
}

func printWorkflowListTable(defs []workflow.Definition) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTRIGGERS\tSTAGES")
	for _, def := range defs {
		var triggers []string
		if def.On.Push != nil {
			triggers = append(triggers, "push")
		}
		if def.On.PullRequest != nil {
			triggers = append(triggers, "pull_request")
		}
		names := make([]string, len(def.Stages))
		for i, st := range def.Stages {
			names[i] = st.Name
			if st.Publish {
				names[i] += "*"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			def.Name,
			strings.Join(triggers, ","),
			strings.Join(names, " -> "),
		)
	}
	w.Flush()
}
