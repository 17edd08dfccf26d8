package rpc

import (
	"context"
	"net/rpc"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/thegame/models"
	"github.com/wfunc/thegame/persistence"
	"github.com/wfunc/thegame/room"
)

type stubRooms []room.Snapshot

func (s stubRooms) Snapshots() ([]room.Snapshot, error) {
	return s, nil
}

type memoryHistory struct {
	db *persistence.Memory
}

func (h memoryHistory) RecentGames(ctx context.Context, limit int) ([]models.GameRecord, error) {
	return h.db.RecentGameRecords(ctx, limit)
}

func newAdmin(t *testing.T) *AdminService {
	t.Helper()
	db := persistence.NewMemory(10)
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, db.SaveGameRecord(context.Background(), &models.GameRecord{
			RoomName: name,
			Players:  []string{"alice"},
			Outcome:  models.OutcomeWon,
		}))
	}
	rooms := stubRooms{
		{Name: "lobby", Phase: "filling", Players: []string{"alice"}, Spectators: []string{}},
	}
	return NewAdminService(rooms, memoryHistory{db: db})
}

func TestAdminService_ListRooms(t *testing.T) {
	admin := newAdmin(t)

	var reply ListRoomsReply
	require.NoError(t, admin.ListRooms(&ListRoomsArgs{}, &reply))
	require.Len(t, reply.Rooms, 1)
	assert.Equal(t, "lobby", reply.Rooms[0].Name)
	assert.Equal(t, "filling", reply.Rooms[0].Phase)
	assert.Equal(t, []string{"alice"}, reply.Rooms[0].Players)

	reply = ListRoomsReply{}
	require.NoError(t, admin.ListRooms(&ListRoomsArgs{Phase: "in_progress"}, &reply))
	assert.Empty(t, reply.Rooms)
}

func TestAdminService_RecentGames(t *testing.T) {
	admin := newAdmin(t)

	var reply RecentGamesReply
	require.NoError(t, admin.RecentGames(&RecentGamesArgs{Limit: 2}, &reply))
	require.Len(t, reply.Games, 2)
	assert.Equal(t, "c", reply.Games[0].RoomName)

	reply = RecentGamesReply{}
	require.NoError(t, admin.RecentGames(&RecentGamesArgs{}, &reply))
	assert.Len(t, reply.Games, 3)
}

func TestServer_RoundTrip(t *testing.T) {
	server, err := NewServer("127.0.0.1:0", newAdmin(t))
	require.NoError(t, err)
	go server.Start()
	defer server.Stop()

	client, err := rpc.Dial("tcp", server.Addr())
	require.NoError(t, err)
	defer client.Close()

	var rooms ListRoomsReply
	require.NoError(t, client.Call("AdminService.ListRooms", &ListRoomsArgs{}, &rooms))
	require.Len(t, rooms.Rooms, 1)
	assert.Equal(t, "lobby", rooms.Rooms[0].Name)

	var games RecentGamesReply
	require.NoError(t, client.Call("AdminService.RecentGames", &RecentGamesArgs{Limit: 1}, &games))
	require.Len(t, games.Games, 1)
	assert.Equal(t, models.OutcomeWon, games.Games[0].Outcome)
}
