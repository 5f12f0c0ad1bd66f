// Package cancel holds cooperative stop requests for running project syncs.
package cancel

import (
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// Registry is a concurrency-safe set of project ids that were asked to stop.
// It is polled by the sync engine, nothing blocks on it.
type Registry struct {
	stops mapset.Set[string]
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{stops: mapset.NewSet[string]()}
}

// RequestStop asks the sync of projectID to stop at its next poll point.
func (r *Registry) RequestStop(projectID string) {
	r.stops.Add(projectID)
}

// ShouldStop reports whether a stop was requested for projectID.
func (r *Registry) ShouldStop(projectID string) bool {
	return r.stops.Contains(projectID)
}

// ClearStop forgets a stop request once it has been honored.
func (r *Registry) ClearStop(projectID string) {
	r.stops.Remove(projectID)
}

// Pending lists the projects with an outstanding stop request.
func (r *Registry) Pending() []string {
	ids := r.stops.ToSlice()
	slices.Sort(ids)
	return ids
}
