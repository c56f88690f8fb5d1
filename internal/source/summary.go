package source

// StatusSummary is a normalized provider response: canonical statuses keyed
// by definition id and by environment id. An empty summary means no recent
// activity.
type StatusSummary struct {
	Name         string
	definitions  map[int]string
	environments map[int]string
}

// NewStatusSummary returns an empty summary.
func NewStatusSummary(name string) *StatusSummary {
	return &StatusSummary{
		Name:         name,
		definitions:  make(map[int]string),
		environments: make(map[int]string),
	}
}

// SetDefinition records the status of a definition. The first status
// recorded for an id wins.
func (s *StatusSummary) SetDefinition(id int, status string) {
	if _, ok := s.definitions[id]; !ok {
		s.definitions[id] = status
	}
}

// SetEnvironment records the status of an environment.
func (s *StatusSummary) SetEnvironment(id int, status string) {
	if _, ok := s.environments[id]; !ok {
		s.environments[id] = status
	}
}

// StatusForDefinition returns the status of a definition, if present.
func (s *StatusSummary) StatusForDefinition(id int) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.definitions[id]
	return v, ok
}

// StatusForEnvironment returns the status of an environment, if present.
func (s *StatusSummary) StatusForEnvironment(id int) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.environments[id]
	return v, ok
}

// Empty reports whether the summary holds no statuses.
func (s *StatusSummary) Empty() bool {
	return s == nil || (len(s.definitions) == 0 && len(s.environments) == 0)
}
