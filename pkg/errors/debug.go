package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// constraintHints maps the schema's named constraints to the domain collision
// they guard, so a failed insert logs what actually happened instead of a
// bare constraint name.
var constraintHints = map[string]string{
	"ux_stops_route_position":        "stop position already taken on this route",
	"ux_participants_route_user":     "user already joined this route",
	"ux_participants_route_guest":    "guest identity already joined this route",
	"ux_skip_votes_stop_participant": "participant already voted on this stop",
	"ux_outbox_dlq_event":            "outbox event already parked in the dead letter queue",
}

// ErrorDump flattens an error chain for structured logging. Postgres driver
// errors (pgx for the pool, lib/pq via goose) contribute the PG* fields.
type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`

	Chain []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
	Hint         string `json:"hint,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	d.attachPostgres(err)
	return d
}

func (d *ErrorDump) attachPostgres(err error) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		d.setPostgres(pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.ColumnName, pgxErr.Detail, pgxErr.Message)
		return
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		d.setPostgres(string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Column, pqErr.Detail, pqErr.Message)
	}
}

func (d *ErrorDump) setPostgres(code, constraint, table, column, detail, message string) {
	d.PGCode = code
	d.PGConstraint = constraint
	d.PGTable = table
	d.PGColumn = column
	d.PGDetail = detail
	d.PGMessage = message
	d.Hint = constraintHints[constraint]
}
