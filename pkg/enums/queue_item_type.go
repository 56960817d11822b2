package enums

import "fmt"

// QueueItemType identifies a pending write intent held in a client's offline
// queue. These are client-local and never stored server-side.
type QueueItemType string

const (
	QueueItemCheckIn       QueueItemType = "check_in"
	QueueItemRecordRound   QueueItemType = "record_round"
	QueueItemCastVote      QueueItemType = "cast_vote"
	QueueItemSpendPot      QueueItemType = "spend_pot"
	QueueItemContributePot QueueItemType = "contribute_pot"
	QueueItemSendNudge     QueueItemType = "send_nudge"
	QueueItemLocation      QueueItemType = "update_location"
)

var validQueueItemTypes = []QueueItemType{
	QueueItemCheckIn,
	QueueItemRecordRound,
	QueueItemCastVote,
	QueueItemSpendPot,
	QueueItemContributePot,
	QueueItemSendNudge,
	QueueItemLocation,
}

// IsValid reports whether the value matches the canonical queue item enum.
func (t QueueItemType) IsValid() bool {
	for _, candidate := range validQueueItemTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseQueueItemType converts raw input into QueueItemType.
func ParseQueueItemType(value string) (QueueItemType, error) {
	for _, candidate := range validQueueItemTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid queue item type %q", value)
}
