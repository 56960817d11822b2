package analytics

import (
	"time"

	"cloud.google.com/go/bigquery"
)

// CrawlEventRow is one flattened route event in the crawl_events table.
// Columns are nullable because each event type fills a different subset.
type CrawlEventRow struct {
	EventID       string                 `bigquery:"event_id"`
	EventType     string                 `bigquery:"event_type"`
	RouteID       string                 `bigquery:"route_id"`
	ParticipantID bigquery.NullString    `bigquery:"participant_id"`
	StopID        bigquery.NullString    `bigquery:"stop_id"`
	RoundType     bigquery.NullString    `bigquery:"round_type"`
	Amount        bigquery.NullFloat64   `bigquery:"amount"`
	SkipVotes     bigquery.NullInt64     `bigquery:"skip_votes"`
	ActiveCount   bigquery.NullInt64     `bigquery:"active_count"`
	ActualRounds  bigquery.NullInt64     `bigquery:"actual_rounds"`
	DistanceM     bigquery.NullFloat64   `bigquery:"distance_meters"`
	Auto          bigquery.NullBool      `bigquery:"auto"`
	Overdrawn     bigquery.NullBool      `bigquery:"overdrawn"`
	OccurredAt    time.Time              `bigquery:"occurred_at"`
	IngestedAt    time.Time              `bigquery:"ingested_at"`
}

func nullString(value string) bigquery.NullString {
	if value == "" {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: value, Valid: true}
}

func nullInt(value *int) bigquery.NullInt64 {
	if value == nil {
		return bigquery.NullInt64{}
	}
	return bigquery.NullInt64{Int64: int64(*value), Valid: true}
}

func nullFloat(value *float64) bigquery.NullFloat64 {
	if value == nil {
		return bigquery.NullFloat64{}
	}
	return bigquery.NullFloat64{Float64: *value, Valid: true}
}

func nullBool(value *bool) bigquery.NullBool {
	if value == nil {
		return bigquery.NullBool{}
	}
	return bigquery.NullBool{Bool: *value, Valid: true}
}
