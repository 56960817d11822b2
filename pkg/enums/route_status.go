package enums

import "fmt"

// RouteStatus maps to the route_status_enum enum in Postgres.
type RouteStatus string

const (
	RouteStatusPending   RouteStatus = "pending"
	RouteStatusActive    RouteStatus = "active"
	RouteStatusCompleted RouteStatus = "completed"
)

var validRouteStatuses = []RouteStatus{
	RouteStatusPending,
	RouteStatusActive,
	RouteStatusCompleted,
}

// rank orders statuses so transitions can only move forward.
var routeStatusRank = map[RouteStatus]int{
	RouteStatusPending:   0,
	RouteStatusActive:    1,
	RouteStatusCompleted: 2,
}

// IsValid reports whether the value matches the canonical route status enum.
func (s RouteStatus) IsValid() bool {
	for _, candidate := range validRouteStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether moving to next keeps the status monotonic.
// Equal statuses are allowed so repeated transitions stay idempotent.
func (s RouteStatus) CanTransitionTo(next RouteStatus) bool {
	if !s.IsValid() || !next.IsValid() {
		return false
	}
	return routeStatusRank[next] >= routeStatusRank[s]
}

// ParseRouteStatus converts raw input into RouteStatus.
func ParseRouteStatus(value string) (RouteStatus, error) {
	for _, candidate := range validRouteStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid route status %q", value)
}
