package geoview

// LayerStatus is the per-leaf load state.
type LayerStatus string

const (
	StatusNotLoaded               LayerStatus = "NOT_LOADED"
	StatusServiceMetadataFetching LayerStatus = "SERVICE_METADATA_FETCHING"
	StatusServiceMetadataFetched  LayerStatus = "SERVICE_METADATA_FETCHED"
	StatusSkipped                 LayerStatus = "SKIPPED"
	StatusProcessing              LayerStatus = "PROCESSING"
	StatusLoaded                  LayerStatus = "LOADED"
	StatusError                   LayerStatus = "ERROR"
)

var statusRank = map[LayerStatus]int{
	StatusNotLoaded:               0,
	StatusServiceMetadataFetching: 1,
	StatusServiceMetadataFetched:  2,
	StatusSkipped:                 2,
	StatusProcessing:              3,
	StatusLoaded:                  4,
}

// Terminal reports whether no further transition is possible.
func (s LayerStatus) Terminal() bool {
	return s == StatusLoaded || s == StatusError
}

// CanTransition reports whether moving from s to next respects the
// one-directional state machine. ERROR is reachable from any non-terminal
// state.
func (s LayerStatus) CanTransition(next LayerStatus) bool {
	if s == "" {
		s = StatusNotLoaded
	}
	if s.Terminal() {
		return false
	}
	if next == StatusError {
		return true
	}
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// Status returns the entry's load state.
func (e *LayerEntryConfig) Status() LayerStatus {
	if e == nil || e.status == "" {
		return StatusNotLoaded
	}
	return e.status
}

// SetStatus moves the entry to next, returning false when the transition
// would go backwards or leave a terminal state.
func (e *LayerEntryConfig) SetStatus(next LayerStatus) bool {
	if e == nil || !e.Status().CanTransition(next) {
		return false
	}
	e.status = next
	return true
}

// Fail moves the entry to ERROR and records why.
func (e *LayerEntryConfig) Fail(diagnostic string) bool {
	if !e.SetStatus(StatusError) {
		return false
	}
	if diagnostic != "" {
		e.diagnostics = append(e.diagnostics, diagnostic)
	}
	return true
}

// Diagnostics returns the messages recorded while loading the entry.
func (e *LayerEntryConfig) Diagnostics() []string {
	if e == nil || len(e.diagnostics) == 0 {
		return nil
	}
	return append([]string(nil), e.diagnostics...)
}

// AddDiagnostic records a non-fatal message on the entry.
func (e *LayerEntryConfig) AddDiagnostic(msg string) {
	if e == nil || msg == "" {
		return
	}
	e.diagnostics = append(e.diagnostics, msg)
}
