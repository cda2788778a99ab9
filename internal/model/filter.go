package model

// RunFilter selects workflow runs for listing.
type RunFilter struct {
	Status    []RunStatus
	Event     []EventKind
	Branch    string
	CommitSHA string
	Workflow  string
	Sort      string // column name, "-" prefix for descending
	Limit     int
	Offset    int
}
