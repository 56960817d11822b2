package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/hopround/hopround-backend/pkg/enums"
)

// ChatMessage stores route chat, nudges, and system notices. The realtime
// snapshot replays the most recent rows to reconnecting clients.
type ChatMessage struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RouteID       uuid.UUID             `gorm:"column:route_id;type:uuid;not null;index"`
	ParticipantID *uuid.UUID            `gorm:"column:participant_id;type:uuid"`
	Kind          enums.ChatMessageKind `gorm:"column:kind;type:chat_message_kind_enum;not null"`
	Body          string                `gorm:"column:body;type:text;not null"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
}
