package board

import "shiptivity/api/internal/store"

// Move asks for a client to change lane and/or rank. Nil fields keep the
// client's current value.
type Move struct {
	ClientID int64
	Status   *store.Status
	Priority *int
}

// Batch is the ordered set of row updates a move needs. Applying the updates
// in order never writes a priority still held by a row that has yet to move
// within the same shifted run.
type Batch struct {
	Updates []store.ClientUpdate
}

func (b Batch) Empty() bool {
	return len(b.Updates) == 0
}

type shift int

const (
	towardFront shift = -1
	towardBack  shift = 1
)

// Plan computes the updates that carry out move against clients. The client
// must exist in clients; an unknown id yields an empty batch.
func Plan(clients []store.Client, move Move) Batch {
	mover, ok := findClient(clients, move.ClientID)
	if !ok {
		return Batch{}
	}

	target := mover.Status
	if move.Status != nil {
		target = *move.Status
	}
	if target == mover.Status && move.Priority == nil {
		return Batch{}
	}

	if target == mover.Status {
		return planWithinLane(clients, mover, *move.Priority)
	}
	return planAcrossLanes(clients, mover, target, move.Priority)
}

// Reorder plans move and returns clients with the batch applied.
func Reorder(clients []store.Client, move Move) ([]store.Client, Batch) {
	batch := Plan(clients, move)
	return Apply(clients, batch.Updates), batch
}

// Apply returns a copy of clients with updates written over the matching ids.
func Apply(clients []store.Client, updates []store.ClientUpdate) []store.Client {
	out := make([]store.Client, len(clients))
	copy(out, clients)
	index := make(map[int64]int, len(out))
	for i, client := range out {
		index[client.ID] = i
	}
	for _, update := range updates {
		i, ok := index[update.ID]
		if !ok {
			continue
		}
		out[i].Status = update.Status
		out[i].Priority = update.Priority
	}
	return out
}

func planWithinLane(clients []store.Client, mover store.Client, requested int) Batch {
	lane := laneMembers(clients, mover.Status)
	oldPos := position(lane, mover.ID)
	newPos := clamp(requested, 1, len(lane)) - 1
	if newPos == oldPos {
		return Batch{}
	}

	var updates []store.ClientUpdate
	if newPos < oldPos {
		updates = shiftRange(lane, newPos, oldPos-1, towardBack)
	} else {
		updates = shiftRange(lane, oldPos+1, newPos, towardFront)
	}
	updates = append(updates, store.ClientUpdate{ID: mover.ID, Status: mover.Status, Priority: newPos + 1})
	return Batch{Updates: updates}
}

func planAcrossLanes(clients []store.Client, mover store.Client, target store.Status, requested *int) Batch {
	source := laneMembers(clients, mover.Status)
	destination := laneMembers(clients, target)

	oldPos := position(source, mover.ID)
	updates := shiftRange(source, oldPos+1, len(source)-1, towardFront)

	newPriority := len(destination) + 1
	if requested != nil && *requested <= len(destination) {
		newPriority = clamp(*requested, 1, len(destination))
	}
	updates = append(updates, shiftRange(destination, newPriority-1, len(destination)-1, towardBack)...)

	updates = append(updates, store.ClientUpdate{ID: mover.ID, Status: target, Priority: newPriority})
	return Batch{Updates: updates}
}

// shiftRange moves lane[from..to] one slot in dir. Runs moving toward the back
// are emitted last-to-first and runs moving toward the front first-to-last, so
// each row lands on a priority its unprocessed neighbours no longer need.
func shiftRange(lane []store.Client, from, to int, dir shift) []store.ClientUpdate {
	if from < 0 {
		from = 0
	}
	if to > len(lane)-1 {
		to = len(lane) - 1
	}
	if from > to {
		return nil
	}

	updates := make([]store.ClientUpdate, 0, to-from+1)
	emit := func(i int) {
		updates = append(updates, store.ClientUpdate{
			ID:       lane[i].ID,
			Status:   lane[i].Status,
			Priority: i + 1 + int(dir),
		})
	}
	if dir == towardBack {
		for i := to; i >= from; i-- {
			emit(i)
		}
	} else {
		for i := from; i <= to; i++ {
			emit(i)
		}
	}
	return updates
}

func findClient(clients []store.Client, id int64) (store.Client, bool) {
	for _, client := range clients {
		if client.ID == id {
			return client, true
		}
	}
	return store.Client{}, false
}

func position(lane []store.Client, id int64) int {
	for i, client := range lane {
		if client.ID == id {
			return i
		}
	}
	return -1
}

func clamp(value, low, high int) int {
	if value > high {
		value = high
	}
	if value < low {
		value = low
	}
	return value
}
