package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_LikeGiven(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ev, err := Decode(NameLikeGiven, map[string]any{"userId": "u1", "postId": "p1"}, at)
	require.NoError(t, err)

	like, ok := ev.(LikeGiven)
	require.True(t, ok)
	assert.Equal(t, "u1", like.UserID())
	assert.Equal(t, "p1", like.PostID)
	assert.Equal(t, at, like.OccurredAt())
	assert.Equal(t, map[string]any{"userId": "u1", "postId": "p1"}, like.Payload())
}

func TestDecode_NumericFields(t *testing.T) {
	ev, err := Decode(NameXPGained, map[string]any{"userId": "u1", "xpGained": float64(60), "totalXp": float64(120)}, time.Time{})
	require.NoError(t, err)

	xp := ev.(XPGained)
	assert.Equal(t, 60, xp.XPGained)
	assert.Equal(t, 120, xp.TotalXP)
	assert.False(t, xp.OccurredAt().IsZero())
}

func TestDecode_Errors(t *testing.T) {
	cases := []struct {
		name    string
		ev      Name
		payload map[string]any
		target  error
	}{
		{"unknown", Name("nope"), map[string]any{"userId": "u1"}, ErrUnknownEvent},
		{"no user", NameProfileUpdated, map[string]any{}, ErrInvalidField},
		{"missing post", NameLikeGiven, map[string]any{"userId": "u1"}, ErrInvalidField},
		{"fractional level", NameLevelReached, map[string]any{"userId": "u1", "level": 1.5}, ErrInvalidField},
		{"negative streak", NameLoginStreak, map[string]any{"userId": "u1", "streakDays": -3}, ErrInvalidField},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.ev, tc.payload, time.Time{})
			assert.ErrorIs(t, err, tc.target)
		})
	}
}

func TestNames(t *testing.T) {
	assert.Len(t, All(), len(Scorable)+len(Derived))
	assert.True(t, NameLikeGiven.IsScorable())
	assert.False(t, NameBadgeEarned.IsScorable())
	assert.True(t, NameBadgeEarned.Valid())
	assert.False(t, Name("bogus").Valid())
}

type countingVisitor struct {
	NopVisitor
	likes int
}

func (v *countingVisitor) VisitLikeGiven(context.Context, LikeGiven) error {
	v.likes++
	return nil
}

func TestAccept_DispatchesToVariant(t *testing.T) {
	v := &countingVisitor{}
	require.NoError(t, NewLikeGiven("u1", "p1").Accept(context.Background(), v))
	require.NoError(t, NewPostCreated("u1", "p1").Accept(context.Background(), v))
	assert.Equal(t, 1, v.likes)
}

func TestData(t *testing.T) {
	d := Data(NewLoginStreak("u1", 7))
	assert.Equal(t, map[string]string{"userId": "u1", "streakDays": "7"}, d)
}
