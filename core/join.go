package core

import "github.com/creastat/infra/telemetry"

// DefaultJoinCapacity is the number of in-flight events a joiner tracks when
// JoinConfig.Capacity is left at zero
const DefaultJoinCapacity = 64

// JoinConfig configures a joiner and the stages built on top of it
type JoinConfig struct {
	// Groups lists the action groups, each an ordered list of source names.
	// Group order decides the order in which simultaneously firing groups are reported.
	Groups [][]string

	// Capacity is the number of events tracked at once. When exceeded the
	// oldest in-flight event is dropped.
	Capacity int

	// VisitCurrentSource replays the arriving payload directly instead of the cached copy.
	// Nil means true.
	VisitCurrentSource *bool

	Logger telemetry.Logger
}

// ShouldVisitCurrentSource resolves VisitCurrentSource with its default
func (c JoinConfig) ShouldVisitCurrentSource() bool {
	return c.VisitCurrentSource == nil || *c.VisitCurrentSource
}
