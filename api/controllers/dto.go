package controllers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hopround/hopround-backend/internal/ledger"
	"github.com/hopround/hopround-backend/internal/progression"
	"github.com/hopround/hopround-backend/internal/votes"
	"github.com/hopround/hopround-backend/pkg/db/models"
	"github.com/hopround/hopround-backend/pkg/enums"
)

type participantDTO struct {
	ID          uuid.UUID  `json:"id"`
	DisplayName string     `json:"displayName"`
	IsGuest     bool       `json:"isGuest"`
	IsActive    bool       `json:"isActive"`
	LastLat     *float64   `json:"lastLat,omitempty"`
	LastLng     *float64   `json:"lastLng,omitempty"`
	LastFixAt   *time.Time `json:"lastFixAt,omitempty"`
	JoinedAt    time.Time  `json:"joinedAt"`
}

func toParticipantDTO(p *models.Participant) participantDTO {
	return participantDTO{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		IsGuest:     p.IsGuest(),
		IsActive:    p.IsActive,
		LastLat:     p.LastLat,
		LastLng:     p.LastLng,
		LastFixAt:   p.LastFixAt,
		JoinedAt:    p.JoinedAt,
	}
}

type stopDTO struct {
	ID            uuid.UUID  `json:"id"`
	Position      int        `json:"position"`
	Name          string     `json:"name"`
	Lat           float64    `json:"lat"`
	Lng           float64    `json:"lng"`
	PlannedRounds int        `json:"plannedRounds"`
	MaxRounds     *int       `json:"maxRounds,omitempty"`
	ActualRounds  int        `json:"actualRounds"`
	ArrivedAt     *time.Time `json:"arrivedAt,omitempty"`
}

func toStopDTO(s *models.Stop) stopDTO {
	return stopDTO{
		ID:            s.ID,
		Position:      s.Position,
		Name:          s.Name,
		Lat:           s.Lat,
		Lng:           s.Lng,
		PlannedRounds: s.PlannedRounds,
		MaxRounds:     s.MaxRounds,
		ActualRounds:  s.ActualRounds,
		ArrivedAt:     s.ArrivedAt,
	}
}

type routeDetailDTO struct {
	ID               uuid.UUID         `json:"id"`
	Name             string            `json:"name"`
	Status           enums.RouteStatus `json:"status"`
	CurrentStopIndex int               `json:"currentStopIndex"`
	CurrentStopID    *uuid.UUID        `json:"currentStopId,omitempty"`
	Completed        bool              `json:"completed"`
	PotTotalSpent    decimal.Decimal   `json:"potTotalSpent"`
	Stops            []stopDTO         `json:"stops"`
}

func toRouteDetailDTO(state *progression.State) routeDetailDTO {
	dto := routeDetailDTO{
		ID:               state.Route.ID,
		Name:             state.Route.Name,
		Status:           state.Route.Status,
		CurrentStopIndex: state.Route.CurrentStopIndex,
		Completed:        state.Completed,
		PotTotalSpent:    state.Route.PotTotalSpent,
		Stops:            make([]stopDTO, 0, len(state.Stops)),
	}
	if state.CurrentStop != nil {
		id := state.CurrentStop.ID
		dto.CurrentStopID = &id
	}
	for i := range state.Stops {
		dto.Stops = append(dto.Stops, toStopDTO(&state.Stops[i]))
	}
	return dto
}

type voteSummaryDTO struct {
	StopID      uuid.UUID `json:"stopId"`
	SkipVotes   int       `json:"skipVotes"`
	StayVotes   int       `json:"stayVotes"`
	ActiveCount int       `json:"activeCount"`
	ShouldSkip  bool      `json:"shouldSkip"`
}

func toVoteSummaryDTO(s votes.Summary) voteSummaryDTO {
	return voteSummaryDTO{
		StopID:      s.StopID,
		SkipVotes:   s.SkipVotes,
		StayVotes:   s.StayVotes,
		ActiveCount: s.ActiveCount,
		ShouldSkip:  s.ShouldSkip,
	}
}

type ledgerDTO struct {
	TotalRounds         int                       `json:"totalRounds"`
	RoundsByParticipant map[string]int            `json:"roundsByParticipant"`
	RoundsByStop        map[string]int            `json:"roundsByStop"`
	RoundsByPayer       map[string]int            `json:"roundsByPayer"`
	RoundsByType        map[enums.RoundType]int   `json:"roundsByType"`
	PotContributed      decimal.Decimal           `json:"potContributed"`
	PotSpent            decimal.Decimal           `json:"potSpent"`
	PotBalance          decimal.Decimal           `json:"potBalance"`
	Overdrawn           bool                      `json:"overdrawn"`
}

func toLedgerDTO(agg *ledger.Aggregates) ledgerDTO {
	return ledgerDTO{
		TotalRounds:         agg.TotalRounds,
		RoundsByParticipant: stringKeyed(agg.RoundsByParticipant),
		RoundsByStop:        stringKeyed(agg.RoundsByStop),
		RoundsByPayer:       stringKeyed(agg.RoundsByPayer),
		RoundsByType:        agg.RoundsByType,
		PotContributed:      agg.PotContributed,
		PotSpent:            agg.PotSpent,
		PotBalance:          agg.PotBalance,
		Overdrawn:           agg.Overdrawn,
	}
}

func stringKeyed(counts map[uuid.UUID]int) map[string]int {
	out := make(map[string]int, len(counts))
	for id, count := range counts {
		out[id.String()] = count
	}
	return out
}

type roundEntryDTO struct {
	ID            uuid.UUID       `json:"id"`
	StopID        uuid.UUID       `json:"stopId"`
	ParticipantID uuid.UUID       `json:"participantId"`
	Type          enums.RoundType `json:"type"`
	PayerID       *uuid.UUID      `json:"payerId,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

func toRoundEntryDTO(entry *models.RoundEntry) roundEntryDTO {
	return roundEntryDTO{
		ID:            entry.ID,
		StopID:        entry.StopID,
		ParticipantID: entry.ParticipantID,
		Type:          entry.Type,
		PayerID:       entry.PayerID,
		CreatedAt:     entry.CreatedAt,
	}
}

type messageDTO struct {
	ID            uuid.UUID             `json:"id"`
	ParticipantID *uuid.UUID            `json:"participantId,omitempty"`
	Kind          enums.ChatMessageKind `json:"kind"`
	Body          string                `json:"body"`
	CreatedAt     time.Time             `json:"createdAt"`
}

func toMessageDTO(msg *models.ChatMessage) messageDTO {
	return messageDTO{
		ID:            msg.ID,
		ParticipantID: msg.ParticipantID,
		Kind:          msg.Kind,
		Body:          msg.Body,
		CreatedAt:     msg.CreatedAt,
	}
}
