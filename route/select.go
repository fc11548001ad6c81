package route

// Select picks the route answering a lookup for filter among candidates.
//
// A candidate survives when it has the filter's family, a prefix no longer
// than the filter's, a network containing the filter's destination and, if
// the filter names an interface, the same interface. The first survivor is
// kept and only a strictly longer prefix replaces it. Without survivors the
// default route is returned.
func Select(filter Route, candidates []Route) Route {
	var sel Selector
	sel.Reset(filter)
	for _, c := range candidates {
		sel.Offer(c)
	}
	return sel.Result()
}

// Selector performs Select incrementally while a dump is being read.
type Selector struct {
	filter Route
	best   Route
	found  bool
}

// Reset starts a new selection for filter.
func (s *Selector) Reset(filter Route) {
	s.filter = filter
	s.best = Route{}
	s.found = false
}

// Offer considers one candidate.
func (s *Selector) Offer(c Route) {
	if c.Family() != s.filter.Family() {
		return
	}
	if c.Prefix > s.filter.Prefix {
		return
	}
	if !c.Contains(s.filter.Destination) {
		return
	}
	if s.filter.HasInterface() && c.IfIndex != s.filter.IfIndex {
		return
	}
	if !s.found || c.Prefix > s.best.Prefix {
		s.best = c
		s.found = true
	}
}

// Found reports whether any candidate survived.
func (s *Selector) Found() bool {
	return s.found
}

// Result returns the selected route or Default.
func (s *Selector) Result() Route {
	if !s.found {
		return Default()
	}
	return s.best
}
