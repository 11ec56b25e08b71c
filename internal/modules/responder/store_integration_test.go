//go:build integration

package responder_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herodispatch/internal/infra/testinfra"
	"herodispatch/internal/modules/responder"
	"herodispatch/internal/types"
)

var (
	testPool  *pgxpool.Pool
	testRedis *redis.Client
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	pool, stopPG, err := testinfra.StartPostgres(ctx)
	if err != nil {
		fmt.Println("testinfra.StartPostgres:", err)
		os.Exit(1)
	}
	client, stopRedis, err := testinfra.StartRedis(ctx)
	if err != nil {
		fmt.Println("testinfra.StartRedis:", err)
		stopPG()
		os.Exit(1)
	}
	testPool, testRedis = pool, client

	code := m.Run()
	stopRedis()
	stopPG()
	os.Exit(code)
}

var center = types.Point{Lat: 12.9716, Lng: 77.5946}

func TestStore_FindAvailableWithinRadius(t *testing.T) {
	ctx := context.Background()
	s := responder.NewStore(testPool, testRedis)

	near := types.Point{Lat: 12.9736, Lng: 77.5946}
	far := types.Point{Lat: 13.0716, Lng: 77.5946}
	require.NoError(t, s.UpdatePresence(ctx, responder.Presence{ID: "doc-1", Role: "doctor", BloodGroup: "A+", Available: true, Position: &near}))
	require.NoError(t, s.UpdatePresence(ctx, responder.Presence{ID: "far-1", Role: "citizen", Available: true, Position: &far}))
	require.NoError(t, s.UpdatePresence(ctx, responder.Presence{ID: "reporter", Role: "citizen", Available: true, Position: &near}))
	require.NoError(t, s.UpdatePresence(ctx, responder.Presence{ID: "off-1", Role: "citizen", Available: true, Position: &near}))
	require.NoError(t, s.UpdatePresence(ctx, responder.Presence{ID: "off-1", Role: "citizen", Available: false}))

	got, err := s.FindAvailableWithinRadius(ctx, center, 2, "reporter")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, types.ID("doc-1"), got[0].ID)
	assert.Equal(t, "doctor", got[0].Role)
	assert.InDelta(t, 0.22, got[0].DistanceKm, 0.02)
}

func TestStore_ApplyRewardClampsTrust(t *testing.T) {
	ctx := context.Background()
	s := responder.NewStore(testPool, testRedis)
	require.NoError(t, s.UpdatePresence(ctx, responder.Presence{ID: "hero", Role: "citizen", Available: true, DeviceToken: "tok"}))

	for i := 0; i < 30; i++ {
		require.NoError(t, s.ApplyReward(ctx, "hero", responder.RescueReward))
	}
	st, err := s.Stats(ctx, "hero")
	require.NoError(t, err)
	assert.Equal(t, 300, st.Points)
	assert.Equal(t, 30, st.Rescues)
	assert.Equal(t, 100, st.TrustScore)

	for i := 0; i < 30; i++ {
		require.NoError(t, s.ApplyReward(ctx, "hero", responder.FalseAlarmPenalty))
	}
	st, err = s.Stats(ctx, "hero")
	require.NoError(t, err)
	assert.Equal(t, 0, st.TrustScore)

	assert.ErrorIs(t, s.ApplyReward(ctx, "ghost", responder.RescueReward), responder.ErrNotFound)

	token, err := s.DeviceToken(ctx, "hero")
	require.NoError(t, err)
	assert.Equal(t, "tok", token)

	token, err = s.DeviceToken(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, token)
}
