package query

// Scorer holds the weights Sphinx's search page uses to rank results.
type Scorer struct {
	// ObjNameMatch is added when the query equals an object's full name or
	// its last dotted component.
	ObjNameMatch int
	// ObjPartialMatch is added when the last dotted component contains the
	// query.
	ObjPartialMatch int
	// ObjPrio maps an object's priority field to a bonus.
	ObjPrio map[int]int
	// ObjPrioDefault is used for priorities missing from ObjPrio.
	ObjPrioDefault int

	Title        int
	PartialTitle int
	Term         int
	PartialTerm  int
}

// DefaultScorer returns Sphinx's stock weights.
func DefaultScorer() Scorer {
	return Scorer{
		ObjNameMatch:    11,
		ObjPartialMatch: 6,
		ObjPrio:         map[int]int{0: 15, 1: 5, 2: -5},
		ObjPrioDefault:  0,
		Title:           15,
		PartialTitle:    7,
		Term:            5,
		PartialTerm:     2,
	}
}

func (s Scorer) objPrio(prio int) int {
	if bonus, ok := s.ObjPrio[prio]; ok {
		return bonus
	}
	return s.ObjPrioDefault
}
