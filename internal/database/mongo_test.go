package database

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUnreadField(t *testing.T) {
	tcases := []struct {
		name   string
		userId string
	}{
		{name: "uuid", userId: "2f1c8a8e-4a4b-4c2d-9a37-0f3c9a0e1b11"},
		{name: "dotted id", userId: "dr.hale"},
		{name: "operator id", userId: "$set"},
		{name: "underscore id", userId: "a_b"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			field := unreadField(tc.userId)
			key, ok := strings.CutPrefix(field, "unreadCount.")
			assert.True(t, ok)
			assert.NotContains(t, key, ".", "expected a single path segment")
			assert.NotContains(t, key, "$")
		})
	}

	assert.NotEqual(t, unreadField("a.b"), unreadField("a_b"))
}

func TestRoomDocUnreadRoundTrip(t *testing.T) {
	unread := map[string]int{"dr.hale": 2, "$patient": 0}

	doc := roomDoc{
		Id:           "r1",
		PairKey:      "7:$patient_dr.hale",
		Participants: []string{"dr.hale", "$patient"},
		LastActivity: time.Now().UTC(),
		UnreadCount:  encodeUnread(unread),
	}

	for key := range doc.UnreadCount {
		assert.NotContains(t, key, ".")
		assert.NotContains(t, key, "$")
	}

	room := doc.room()
	assert.Equal(t, unread, room.UnreadCount)
	assert.Equal(t, [2]string{"dr.hale", "$patient"}, room.Participants)
}
