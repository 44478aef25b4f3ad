package trigger

// Filter selects the push events that start a run
type Filter struct {
	// Branch is the single designated branch name. Matching is exact and
	// case-sensitive; patterns are not supported.
	Branch string
}

// NewFilter creates a filter for a branch
func NewFilter(branch string) Filter {
	return Filter{Branch: branch}
}

// Matches reports whether the event is a push to the designated branch.
// A push that deletes the branch does not match.
func (f Filter) Matches(e *Event) bool {
	if e == nil || f.Branch == "" {
		return false
	}
	if e.Name != EventPush || e.IsDeletion() {
		return false
	}
	return e.Ref == BranchRefPrefix+f.Branch
}
