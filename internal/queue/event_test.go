package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gighall/crewbook/internal/repository"
)

func TestUserNotificationEvent_JSONShape(t *testing.T) {
	ev := UserNotificationEvent{
		NotificationID: "b2f7",
		UserID:         7,
		Type:           NotifyBooked,
		Title:          "You've been booked",
		Message:        "You are confirmed as Bassist",
		Metadata:       map[string]interface{}{"gig_id": 12, "role_index": 0},
		EmittedAt:      "2026-08-29T10:00:00Z",
	}
	b, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "booked", decoded["type"])
	assert.NotContains(t, decoded, "action_url", "empty action url must be omitted")
}

func TestTrustScore(t *testing.T) {
	assert.Equal(t, 0, TrustScore(repository.TrustAggregate{}))
	assert.Equal(t, 5, TrustScore(repository.TrustAggregate{Booked: 1}))
	assert.Equal(t, 16, TrustScore(repository.TrustAggregate{Booked: 1, Completed: 1, Confirmed: 1}))
	// Heavy cancellation history floors at zero rather than going negative.
	assert.Equal(t, 0, TrustScore(repository.TrustAggregate{Booked: 1, Cancelled: 3}))
}
