package store

import "errors"

var ErrNotFound = errors.New("not found")

type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusInProgress Status = "in-progress"
	StatusComplete   Status = "complete"
)

// Statuses lists the lanes in board order.
var Statuses = []Status{StatusBacklog, StatusInProgress, StatusComplete}

func ParseStatus(raw string) (Status, bool) {
	status := Status(raw)
	return status, status.Valid()
}

func (s Status) Valid() bool {
	switch s {
	case StatusBacklog, StatusInProgress, StatusComplete:
		return true
	}
	return false
}

type Client struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      Status `json:"status"`
	Priority    int    `json:"priority"`
}

// ClientUpdate is one row of a reorder batch.
type ClientUpdate struct {
	ID       int64
	Status   Status
	Priority int
}

type ClientSeed struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      Status `json:"status"`
}
