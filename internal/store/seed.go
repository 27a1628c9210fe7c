package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed seed.json
var seedJSON []byte

// DefaultSeeds returns the client set shipped with the service.
func DefaultSeeds() ([]ClientSeed, error) {
	var seeds []ClientSeed
	if err := json.Unmarshal(seedJSON, &seeds); err != nil {
		return nil, fmt.Errorf("decode seed data: %w", err)
	}
	return seeds, nil
}

// SeedClients numbers seeds from 1 in file order and ranks each lane densely
// in file order.
func SeedClients(seeds []ClientSeed) ([]Client, error) {
	next := make(map[Status]int, len(Statuses))
	clients := make([]Client, 0, len(seeds))
	for i, seed := range seeds {
		if !seed.Status.Valid() {
			return nil, fmt.Errorf("seed %d: invalid status %q", i+1, seed.Status)
		}
		next[seed.Status]++
		clients = append(clients, Client{
			ID:          int64(i + 1),
			Name:        seed.Name,
			Description: seed.Description,
			Status:      seed.Status,
			Priority:    next[seed.Status],
		})
	}
	return clients, nil
}

// Seed inserts seeds when the clients table is empty and reports how many rows
// were written.
func (s *SQLStore) Seed(ctx context.Context, seeds []ClientSeed) (int, error) {
	clients, err := SeedClients(seeds)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin seed tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM clients`).Scan(&existing); err != nil {
		return 0, fmt.Errorf("count clients: %w", err)
	}
	if existing > 0 {
		return 0, nil
	}

	stmt, err := tx.PrepareContext(ctx, rebind(s.dialect, `
		INSERT INTO clients (id, name, description, status, priority)
		VALUES (?, ?, ?, ?, ?)
	`))
	if err != nil {
		return 0, fmt.Errorf("prepare seed insert: %w", err)
	}
	defer stmt.Close()

	for _, client := range clients {
		if _, err := stmt.ExecContext(ctx, client.ID, client.Name, client.Description, string(client.Status), client.Priority); err != nil {
			return 0, fmt.Errorf("insert client %d: %w", client.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed tx: %w", err)
	}
	return len(clients), nil
}
