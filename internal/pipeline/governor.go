package pipeline

// Governor caps sends per invocation. Not calendar-aware: the cap resets with
// each run, so "daily" holds as long as the caller schedules runs daily.
type Governor struct {
	cap      int // 0 = unlimited
	admitted int
}

func NewGovernor(cap int) *Governor {
	return &Governor{cap: cap}
}

// Admit consumes one slot for a ready, non-duplicate row. Once it returns
// false it keeps returning false for the rest of the run.
func (g *Governor) Admit() bool {
	if g.cap > 0 && g.admitted >= g.cap {
		return false
	}
	g.admitted++
	return true
}

func (g *Governor) Admitted() int { return g.admitted }
