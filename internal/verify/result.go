package verify

// CheckKind names one of the four verification checks.
type CheckKind string

const (
	CheckCount      CheckKind = "count"
	CheckProvenance CheckKind = "provenance"
	CheckContent    CheckKind = "content"
	CheckMapping    CheckKind = "mapping"
)

// DivergenceKind classifies a divergent record.
type DivergenceKind string

const (
	DivergenceMissing      DivergenceKind = "missing"
	DivergenceInconsistent DivergenceKind = "inconsistent"
)

// FieldDiff is one differing field between a source row and its target
// document.
type FieldDiff struct {
	Field  string
	Source any
	Target any
}

// Divergence is one divergent record found by the content check. For
// inconsistent records, Diffs holds a bounded number of differing fields
// for diagnostics; TruncatedDiffs counts fields beyond the bound.
type Divergence struct {
	ID             string
	Kind           DivergenceKind
	Diffs          []FieldDiff
	TruncatedDiffs int
}

// CheckResult is the outcome of a single check for one table. A check
// skipped because an earlier check failed has Skipped set and does not
// count as passed.
type CheckResult struct {
	Kind        CheckKind
	Passed      bool
	Skipped     bool
	Detail      string
	Warning     string
	Divergences []Divergence
}

// Result aggregates all four checks for one table.
type Result struct {
	Table       string
	SourceCount int64
	TargetCount int64
	Count       CheckResult
	Provenance  CheckResult
	Content     CheckResult
	Mapping     CheckResult
}

// Passed reports whether every check passed.
func (r *Result) Passed() bool {
	return r.Count.Passed && r.Provenance.Passed && r.Content.Passed && r.Mapping.Passed
}

// Checks returns the four check results in execution order.
func (r *Result) Checks() []CheckResult {
	return []CheckResult{r.Count, r.Provenance, r.Content, r.Mapping}
}

// DivergentIDs returns the identities of divergent records of the given
// kind found by the content check.
func (r *Result) DivergentIDs(kind DivergenceKind) []string {
	var ids []string
	for _, d := range r.Content.Divergences {
		if d.Kind == kind {
			ids = append(ids, d.ID)
		}
	}
	return ids
}
