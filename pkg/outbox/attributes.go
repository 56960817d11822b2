package outbox

// Attribute keys attached to published route-event messages so consumers can
// route and dedup without decoding the envelope.
const (
	AttrEventID       = "event_id"
	AttrEventType     = "event_type"
	AttrAggregateType = "aggregate_type"
	AttrAggregateID   = "aggregate_id"
	AttrRouteID       = "route_id"
)
