package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/tabletop/internal/ir"
)

// GameLog is everything needed to rebuild a game: its setup and history.
type GameLog struct {
	GameID string
	Setup  ir.Setup
	Nodes  []ir.HistoryNode
}

// Change replaces a game's history from node FromNode on with Nodes.
// Appending an event rewrites the last node; starting an action appends a
// node; a rollback truncates.
type Change struct {
	GameID   string
	FromNode int
	Nodes    []ir.HistoryNode
}

// GameSummary is one row of ListGames.
type GameSummary struct {
	ID      string
	Catalog string
	Nodes   int
	Events  int
	LastSeq int64
}

// CreateGame records a new game's setup blob.
// Returns ErrGameExists if the id is taken.
func (s *Store) CreateGame(ctx context.Context, id string, setup ir.Setup) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create game: begin: %w", err)
	}
	defer tx.Rollback()

	if err := insertGame(ctx, tx, id, setup); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create game: commit: %w", err)
	}
	return nil
}

func insertGame(ctx context.Context, tx *sql.Tx, id string, setup ir.Setup) error {
	var exists int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM games WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("create game %s: %w", id, err)
	}
	if exists > 0 {
		return fmt.Errorf("create game %s: %w", id, ErrGameExists)
	}

	setupJSON, err := marshalIR(setup.IR())
	if err != nil {
		return fmt.Errorf("create game %s: marshal setup: %w", id, err)
	}
	setupHash, err := ir.SetupHash(setup)
	if err != nil {
		return fmt.Errorf("create game %s: %w", id, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO games (id, setup, setup_hash, catalog, engine_version, format_version)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, setupJSON, setupHash, setup.Catalog, ir.EngineVersion, ir.FormatVersion)
	if err != nil {
		return fmt.Errorf("create game %s: %w", id, err)
	}
	return nil
}

// Commit atomically deletes every node with idx >= c.FromNode (and its
// events) and inserts c.Nodes in their place.
func (s *Store) Commit(ctx context.Context, c Change) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit %s: begin: %w", c.GameID, err)
	}
	defer tx.Rollback()

	if err := commitChange(ctx, tx, c); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", c.GameID, err)
	}
	return nil
}

func commitChange(ctx context.Context, tx *sql.Tx, c Change) error {
	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM games WHERE id = ?`, c.GameID).Scan(&exists); err != nil {
		return fmt.Errorf("commit %s: %w", c.GameID, err)
	}
	if exists == 0 {
		return fmt.Errorf("commit %s: %w", c.GameID, ErrGameNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM history_events WHERE game_id = ? AND node_idx >= ?`, c.GameID, c.FromNode); err != nil {
		return fmt.Errorf("commit %s: truncate events: %w", c.GameID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM history_nodes WHERE game_id = ? AND idx >= ?`, c.GameID, c.FromNode); err != nil {
		return fmt.Errorf("commit %s: truncate nodes: %w", c.GameID, err)
	}

	for i, node := range c.Nodes {
		if node.Index != c.FromNode+i {
			return fmt.Errorf("commit %s: node %d carries index %d", c.GameID, c.FromNode+i, node.Index)
		}
		if err := insertNode(ctx, tx, c.GameID, node); err != nil {
			return err
		}
	}
	return nil
}

func insertNode(ctx context.Context, tx *sql.Tx, gameID string, node ir.HistoryNode) error {
	snapJSON, err := marshalIR(node.Snapshot.IR())
	if err != nil {
		return fmt.Errorf("node %d: marshal snapshot: %w", node.Index, err)
	}
	snapHash, err := ir.SnapshotHash(node.Snapshot)
	if err != nil {
		return fmt.Errorf("node %d: %w", node.Index, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO history_nodes (game_id, idx, snapshot, snapshot_hash)
		VALUES (?, ?, ?, ?)
	`, gameID, node.Index, snapJSON, snapHash); err != nil {
		return fmt.Errorf("node %d: %w", node.Index, err)
	}

	for pos, ev := range node.Events {
		payload, err := marshalIR(ev.IR())
		if err != nil {
			return fmt.Errorf("node %d event %d: marshal: %w", node.Index, pos, err)
		}
		evHash, err := ir.EventHash(ev)
		if err != nil {
			return fmt.Errorf("node %d event %d: %w", node.Index, pos, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO history_events (game_id, node_idx, pos, seq, player, kind, payload, one_way, event_hash)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, gameID, node.Index, pos, ev.Seq, ev.Player, string(ev.Kind), payload, ev.OneWay, evHash); err != nil {
			return fmt.Errorf("node %d event %d: %w", node.Index, pos, err)
		}
	}
	return nil
}

// Import stores a complete game log in one transaction.
func (s *Store) Import(ctx context.Context, log GameLog) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("import %s: begin: %w", log.GameID, err)
	}
	defer tx.Rollback()

	if err := insertGame(ctx, tx, log.GameID, log.Setup); err != nil {
		return err
	}
	if err := commitChange(ctx, tx, Change{GameID: log.GameID, Nodes: log.Nodes}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("import %s: %w", log.GameID, err)
	}
	return nil
}

// LoadGame reads a game's setup and full history.
// Nodes are ordered by idx, events by pos.
func (s *Store) LoadGame(ctx context.Context, id string) (GameLog, error) {
	var setupJSON string
	err := s.db.QueryRowContext(ctx, `SELECT setup FROM games WHERE id = ?`, id).Scan(&setupJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return GameLog{}, fmt.Errorf("load game %s: %w", id, ErrGameNotFound)
	}
	if err != nil {
		return GameLog{}, fmt.Errorf("load game %s: %w", id, err)
	}
	setup, err := unmarshalSetup(setupJSON)
	if err != nil {
		return GameLog{}, fmt.Errorf("load game %s: %w", id, err)
	}

	nodes, err := s.readNodes(ctx, id)
	if err != nil {
		return GameLog{}, fmt.Errorf("load game %s: %w", id, err)
	}
	if err := s.readEvents(ctx, id, nodes); err != nil {
		return GameLog{}, fmt.Errorf("load game %s: %w", id, err)
	}
	return GameLog{GameID: id, Setup: setup, Nodes: nodes}, nil
}

func (s *Store) readNodes(ctx context.Context, id string) ([]ir.HistoryNode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, snapshot, snapshot_hash FROM history_nodes
		WHERE game_id = ?
		ORDER BY idx ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []ir.HistoryNode
	for rows.Next() {
		var (
			idx            int
			snapJSON, hash string
		)
		if err := rows.Scan(&idx, &snapJSON, &hash); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		if idx != len(nodes) {
			return nil, fmt.Errorf("%w: node index %d out of sequence", ErrCorruptLog, idx)
		}
		snap, err := unmarshalSnapshot(snapJSON)
		if err != nil {
			return nil, err
		}
		got, err := ir.SnapshotHash(snap)
		if err != nil {
			return nil, err
		}
		if got != hash {
			return nil, fmt.Errorf("%w: node %d snapshot hash mismatch", ErrCorruptLog, idx)
		}
		nodes = append(nodes, ir.HistoryNode{Index: idx, Snapshot: snap})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	return nodes, nil
}

func (s *Store) readEvents(ctx context.Context, id string, nodes []ir.HistoryNode) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT node_idx, payload FROM history_events
		WHERE game_id = ?
		ORDER BY node_idx ASC, pos ASC
	`, id)
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			idx     int
			payload string
		)
		if err := rows.Scan(&idx, &payload); err != nil {
			return fmt.Errorf("scan event: %w", err)
		}
		if idx < 0 || idx >= len(nodes) {
			return fmt.Errorf("%w: event references node %d", ErrCorruptLog, idx)
		}
		ev, err := unmarshalEvent(payload)
		if err != nil {
			return err
		}
		nodes[idx].Events = append(nodes[idx].Events, ev)
	}
	return rows.Err()
}

// ListGames returns every stored game ordered by id.
func (s *Store) ListGames(ctx context.Context) ([]GameSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.catalog,
			(SELECT COUNT(*) FROM history_nodes n WHERE n.game_id = g.id),
			(SELECT COUNT(*) FROM history_events e WHERE e.game_id = g.id),
			(SELECT COALESCE(MAX(e.seq), 0) FROM history_events e WHERE e.game_id = g.id)
		FROM games g
		ORDER BY g.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	games := []GameSummary{}
	for rows.Next() {
		var g GameSummary
		if err := rows.Scan(&g.ID, &g.Catalog, &g.Nodes, &g.Events, &g.LastSeq); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate games: %w", err)
	}
	return games, nil
}
