package board

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shiptivity/api/internal/store"
)

func statusPtr(s store.Status) *store.Status { return &s }
func intPtr(v int) *int                      { return &v }

// lane builds clients named by the given letters, ranked in argument order.
func lane(status store.Status, firstID int64, names ...string) []store.Client {
	clients := make([]store.Client, len(names))
	for i, name := range names {
		clients[i] = store.Client{ID: firstID + int64(i), Name: name, Status: status, Priority: i + 1}
	}
	return clients
}

func namesIn(clients []store.Client, status store.Status) []string {
	members := laneMembers(clients, status)
	names := make([]string, len(members))
	for i, member := range members {
		names[i] = member.Name
	}
	return names
}

func idOf(t *testing.T, clients []store.Client, name string) int64 {
	t.Helper()
	for _, client := range clients {
		if client.Name == name {
			return client.ID
		}
	}
	t.Fatalf("no client named %s", name)
	return 0
}

func TestReorderNoOpWithoutTargets(t *testing.T) {
	clients := lane(store.StatusBacklog, 1, "A", "B", "C")

	got, batch := Reorder(clients, Move{ClientID: 2})
	assert.True(t, batch.Empty())
	assert.Equal(t, clients, got)

	got, batch = Reorder(clients, Move{ClientID: 2, Status: statusPtr(store.StatusBacklog)})
	assert.True(t, batch.Empty())
	assert.Equal(t, clients, got)
}

func TestReorderSamePriorityIsNoOp(t *testing.T) {
	clients := lane(store.StatusBacklog, 1, "A", "B", "C")
	_, batch := Reorder(clients, Move{ClientID: 2, Priority: intPtr(2)})
	assert.True(t, batch.Empty())
}

func TestReorderUnknownClientIsNoOp(t *testing.T) {
	clients := lane(store.StatusBacklog, 1, "A", "B")
	got, batch := Reorder(clients, Move{ClientID: 99, Priority: intPtr(1)})
	assert.True(t, batch.Empty())
	assert.Equal(t, clients, got)
}

func TestReorderWithinLaneTowardBack(t *testing.T) {
	clients := lane(store.StatusBacklog, 1, "A", "B", "C", "D")

	got, batch := Reorder(clients, Move{ClientID: idOf(t, clients, "A"), Priority: intPtr(3)})

	assert.Equal(t, []string{"B", "C", "A", "D"}, namesIn(got, store.StatusBacklog))
	require.NoError(t, CheckLanes(got))
	assert.Equal(t, []store.ClientUpdate{
		{ID: 2, Status: store.StatusBacklog, Priority: 1},
		{ID: 3, Status: store.StatusBacklog, Priority: 2},
		{ID: 1, Status: store.StatusBacklog, Priority: 3},
	}, batch.Updates)
}

func TestReorderWithinLaneTowardFront(t *testing.T) {
	clients := lane(store.StatusBacklog, 1, "A", "B", "C", "D")

	got, batch := Reorder(clients, Move{ClientID: idOf(t, clients, "D"), Priority: intPtr(1)})

	assert.Equal(t, []string{"D", "A", "B", "C"}, namesIn(got, store.StatusBacklog))
	require.NoError(t, CheckLanes(got))
	assert.Equal(t, []store.ClientUpdate{
		{ID: 3, Status: store.StatusBacklog, Priority: 4},
		{ID: 2, Status: store.StatusBacklog, Priority: 3},
		{ID: 1, Status: store.StatusBacklog, Priority: 2},
		{ID: 4, Status: store.StatusBacklog, Priority: 1},
	}, batch.Updates)
}

func TestReorderWithinLaneClampsToLaneSize(t *testing.T) {
	clients := lane(store.StatusInProgress, 1, "A", "B", "C")

	got, _ := Reorder(clients, Move{ClientID: 1, Priority: intPtr(50)})
	assert.Equal(t, []string{"B", "C", "A"}, namesIn(got, store.StatusInProgress))

	got, _ = Reorder(clients, Move{ClientID: 3, Priority: intPtr(-4)})
	assert.Equal(t, []string{"C", "A", "B"}, namesIn(got, store.StatusInProgress))
}

func TestReorderAcrossLanesExplicitSlot(t *testing.T) {
	clients := append(
		lane(store.StatusBacklog, 1, "A", "B"),
		lane(store.StatusInProgress, 3, "X", "Y")...,
	)

	got, batch := Reorder(clients, Move{
		ClientID: idOf(t, clients, "A"),
		Status:   statusPtr(store.StatusInProgress),
		Priority: intPtr(1),
	})

	assert.Equal(t, []string{"B"}, namesIn(got, store.StatusBacklog))
	assert.Equal(t, []string{"A", "X", "Y"}, namesIn(got, store.StatusInProgress))
	require.NoError(t, CheckLanes(got))
	assert.Equal(t, []store.ClientUpdate{
		{ID: 2, Status: store.StatusBacklog, Priority: 1},
		{ID: 4, Status: store.StatusInProgress, Priority: 3},
		{ID: 3, Status: store.StatusInProgress, Priority: 2},
		{ID: 1, Status: store.StatusInProgress, Priority: 1},
	}, batch.Updates)
}

func TestReorderAcrossLanesAppendsByDefault(t *testing.T) {
	clients := append(
		lane(store.StatusBacklog, 1, "A", "B"),
		lane(store.StatusInProgress, 3, "X", "Y")...,
	)

	got, batch := Reorder(clients, Move{ClientID: idOf(t, clients, "A"), Status: statusPtr(store.StatusInProgress)})

	assert.Equal(t, []string{"B"}, namesIn(got, store.StatusBacklog))
	assert.Equal(t, []string{"X", "Y", "A"}, namesIn(got, store.StatusInProgress))
	require.NoError(t, CheckLanes(got))
	assert.Equal(t, []store.ClientUpdate{
		{ID: 2, Status: store.StatusBacklog, Priority: 1},
		{ID: 1, Status: store.StatusInProgress, Priority: 3},
	}, batch.Updates)
}

func TestReorderAcrossLanesBeyondSizeAppends(t *testing.T) {
	clients := append(
		lane(store.StatusBacklog, 1, "A", "B", "C"),
		lane(store.StatusComplete, 4, "X")...,
	)

	got, _ := Reorder(clients, Move{ClientID: 2, Status: statusPtr(store.StatusComplete), Priority: intPtr(7)})

	assert.Equal(t, []string{"A", "C"}, namesIn(got, store.StatusBacklog))
	assert.Equal(t, []string{"X", "B"}, namesIn(got, store.StatusComplete))
	require.NoError(t, CheckLanes(got))
}

func TestReorderIntoEmptyLane(t *testing.T) {
	clients := lane(store.StatusBacklog, 1, "A", "B")

	got, _ := Reorder(clients, Move{ClientID: 1, Status: statusPtr(store.StatusComplete), Priority: intPtr(3)})

	assert.Equal(t, []string{"B"}, namesIn(got, store.StatusBacklog))
	assert.Equal(t, []string{"A"}, namesIn(got, store.StatusComplete))
	require.NoError(t, CheckLanes(got))
}

func TestReorderLeavesOtherLanesUntouched(t *testing.T) {
	clients := append(
		lane(store.StatusBacklog, 1, "A", "B"),
		lane(store.StatusComplete, 3, "X", "Y")...,
	)

	_, batch := Reorder(clients, Move{ClientID: 1, Priority: intPtr(2)})
	for _, update := range batch.Updates {
		assert.Equal(t, store.StatusBacklog, update.Status)
	}
}

func TestShiftRangeOrdering(t *testing.T) {
	members := lane(store.StatusBacklog, 1, "A", "B", "C", "D")

	back := shiftRange(members, 1, 2, towardBack)
	assert.Equal(t, []store.ClientUpdate{
		{ID: 3, Status: store.StatusBacklog, Priority: 4},
		{ID: 2, Status: store.StatusBacklog, Priority: 3},
	}, back)

	front := shiftRange(members, 2, 3, towardFront)
	assert.Equal(t, []store.ClientUpdate{
		{ID: 3, Status: store.StatusBacklog, Priority: 2},
		{ID: 4, Status: store.StatusBacklog, Priority: 3},
	}, front)

	assert.Empty(t, shiftRange(members, 3, 2, towardBack))
	assert.Empty(t, shiftRange(nil, 0, 0, towardFront))
}

// Applying a batch row by row must never produce two rows with the same
// priority inside a shifted run before the mover is written.
func TestBatchOrderAvoidsCollisionsWithinRuns(t *testing.T) {
	clients := lane(store.StatusBacklog, 1, "A", "B", "C", "D", "E")
	batch := Plan(clients, Move{ClientID: 5, Priority: intPtr(1)})
	require.False(t, batch.Empty())

	current := clients
	shifts := batch.Updates[:len(batch.Updates)-1]
	for _, update := range shifts {
		current = Apply(current, []store.ClientUpdate{update})
		seen := map[int]int64{}
		for _, client := range current {
			if client.ID == 5 {
				continue
			}
			if other, dup := seen[client.Priority]; dup {
				t.Fatalf("clients %d and %d share priority %d mid-batch", other, client.ID, client.Priority)
			}
			seen[client.Priority] = client.ID
		}
	}
}

func TestReorderPreservesLaneInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	clients := append(append(
		lane(store.StatusBacklog, 1, "a1", "a2", "a3", "a4", "a5"),
		lane(store.StatusInProgress, 6, "b1", "b2", "b3")...),
		lane(store.StatusComplete, 9, "c1", "c2")...,
	)

	for i := 0; i < 500; i++ {
		move := Move{ClientID: clients[rng.Intn(len(clients))].ID}
		if rng.Intn(3) > 0 {
			move.Status = statusPtr(store.Statuses[rng.Intn(len(store.Statuses))])
		}
		if rng.Intn(3) > 0 {
			move.Priority = intPtr(rng.Intn(14) - 2)
		}

		var batch Batch
		clients, batch = Reorder(clients, move)
		require.NoError(t, CheckLanes(clients), "step %d move %+v batch %+v", i, move, batch)
		require.Len(t, clients, 10)
	}
}
