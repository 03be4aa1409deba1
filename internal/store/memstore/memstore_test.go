package memstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webitel/im-gamification-service/internal/domain/model"
	"github.com/webitel/im-gamification-service/internal/store"
	"github.com/webitel/im-gamification-service/internal/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return New() })
}

func TestNotificationIndex(t *testing.T) {
	s := New()
	ctx := context.Background()

	var last model.Notification
	for i := 0; i < 50; i++ {
		for _, user := range []string{"u1", "u2"} {
			n, err := s.CreateNotification(ctx, model.Notification{UserID: user, Title: fmt.Sprintf("n%d", i)})
			require.NoError(t, err)
			if user == "u1" {
				last = n
			}
		}
	}

	// ids are scoped to their owner
	_, err := s.MarkNotificationRead(ctx, "u2", last.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	n, err := s.MarkNotificationRead(ctx, "u1", last.ID)
	require.NoError(t, err)
	assert.True(t, n.Read)
	assert.Equal(t, "n49", n.Title)

	page, err := s.ListNotifications(ctx, "u1", model.Page{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "n48", page[0].Title)
	assert.Equal(t, "n47", page[1].Title)

	page, err = s.ListNotifications(ctx, "u1", model.Page{Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.True(t, page[0].Read)

	_, err = s.CreateNotification(ctx, model.Notification{ID: last.ID, UserID: "u1"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestActivitiesPerUser(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.AppendActivity(ctx, model.Activity{UserID: "u1", EventName: "like_given", Points: i})
		require.NoError(t, err)
		_, err = s.AppendActivity(ctx, model.Activity{UserID: "u2", EventName: "post_created", Points: 10})
		require.NoError(t, err)
	}

	items, err := s.ListActivities(ctx, "u1", 3)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, 4, items[0].Points)
	for _, a := range items {
		assert.Equal(t, "u1", a.UserID)
	}

	items, err = s.ListActivities(ctx, "u3", 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}
