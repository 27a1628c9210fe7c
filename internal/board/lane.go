// Package board holds the lane ordering rules: building priority-ordered lanes
// and planning the priority shifts a reorder needs so every lane stays ranked
// 1..N without gaps or duplicates.
package board

import (
	"fmt"
	"sort"

	"shiptivity/api/internal/store"
)

type Lane struct {
	Status  store.Status   `json:"status"`
	Clients []store.Client `json:"clients"`
}

type Board struct {
	Lanes []Lane `json:"lanes"`
}

// BuildLane returns the ids of the clients in status, highest precedence
// first.
func BuildLane(clients []store.Client, status store.Status) []int64 {
	members := laneMembers(clients, status)
	ids := make([]int64, len(members))
	for i, member := range members {
		ids[i] = member.ID
	}
	return ids
}

// BuildBoard groups clients into every lane in board order.
func BuildBoard(clients []store.Client) Board {
	lanes := make([]Lane, 0, len(store.Statuses))
	for _, status := range store.Statuses {
		lanes = append(lanes, Lane{Status: status, Clients: laneMembers(clients, status)})
	}
	return Board{Lanes: lanes}
}

// CheckLanes reports the first lane whose priorities are not exactly 1..N.
func CheckLanes(clients []store.Client) error {
	for _, status := range store.Statuses {
		for i, member := range laneMembers(clients, status) {
			if member.Priority != i+1 {
				return fmt.Errorf("lane %s: client %d has priority %d at rank %d", status, member.ID, member.Priority, i+1)
			}
		}
	}
	return nil
}

// laneMembers filters by status and sorts by priority. Ties keep their input
// order.
func laneMembers(clients []store.Client, status store.Status) []store.Client {
	members := make([]store.Client, 0)
	for _, client := range clients {
		if client.Status == status {
			members = append(members, client)
		}
	}
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].Priority < members[j].Priority
	})
	return members
}
