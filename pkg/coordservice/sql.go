package coordservice

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Inspector runs the read-only SQL introspection queries spec'd for advanced
// checks the HTTP API doesn't surface: chunk-level state and hashlist
// archival flags straight from the coordination service's own database.
type Inspector struct {
	db *sqlx.DB
}

// NewInspector opens a read-only connection to dsn. The coordination
// service's database is reachable directly (typically over an operator-
// managed SSH tunnel or VPN to the service's network) rather than through
// pkg/remoteshell — this is a standing SQL connection, not a one-off
// command execution.
func NewInspector(dsn string) (*Inspector, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to coordination service database: %w", err)
	}
	db.SetMaxOpenConns(5)
	return &Inspector{db: db}, nil
}

func (i *Inspector) Close() error { return i.db.Close() }

// taskRow mirrors the subset of the Task table this package reads.
type taskRow struct {
	ID          string     `db:"id"`
	Status      string     `db:"status"`
	CompletedAt *time.Time `db:"completed_at"`
}

// TaskCompleted reports whether the coordination service's own Task table
// shows taskID as completed, bypassing the HTTP status endpoint for cases
// where its cache lags the database.
func (i *Inspector) TaskCompleted(ctx context.Context, taskID string) (bool, error) {
	var row taskRow
	err := i.db.GetContext(ctx, &row, `SELECT id, status, completed_at FROM "Task" WHERE id = $1`, taskID)
	if err != nil {
		return false, fmt.Errorf("query Task %s: %w", taskID, err)
	}
	return row.Status == "completed" && row.CompletedAt != nil, nil
}

// ChunkState is one row of the Chunk table for a task.
type ChunkState struct {
	ID                string `db:"id"`
	TaskID            string `db:"task_id"`
	Status            string `db:"status"`
	KeyspaceProcessed int64  `db:"keyspace_processed"`
}

// ChunkStates returns every chunk recorded against taskID, for diagnosing a
// task that is stuck short of 100% according to the HTTP API.
func (i *Inspector) ChunkStates(ctx context.Context, taskID string) ([]ChunkState, error) {
	var rows []ChunkState
	err := i.db.SelectContext(ctx, &rows,
		`SELECT id, task_id, status, keyspace_processed FROM "Chunk" WHERE task_id = $1 ORDER BY id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query Chunk for task %s: %w", taskID, err)
	}
	return rows, nil
}

// HashlistArchived reports whether the coordination service has archived
// hashlistID (the getTaskStatus isArchived flag tracks per-task archival;
// this checks the hashlist itself, e.g. after a storage-quota sweep).
func (i *Inspector) HashlistArchived(ctx context.Context, hashlistID string) (bool, error) {
	var archived bool
	err := i.db.GetContext(ctx, &archived, `SELECT archived FROM "Hashlist" WHERE id = $1`, hashlistID)
	if err != nil {
		return false, fmt.Errorf("query Hashlist %s: %w", hashlistID, err)
	}
	return archived, nil
}

// agentRow mirrors the Agent table columns used for a liveness check.
type agentRow struct {
	ID       string    `db:"id"`
	LastSeen time.Time `db:"last_seen"`
}

// ActiveAgentCount returns how many agents in the Agent table have reported
// within the last since duration — a sanity check before submitting a new
// task, since the HTTP API has no "is anyone listening" endpoint.
func (i *Inspector) ActiveAgentCount(ctx context.Context, since time.Duration) (int, error) {
	var agents []agentRow
	cutoff := time.Now().Add(-since)
	err := i.db.SelectContext(ctx, &agents, `SELECT id, last_seen FROM "Agent" WHERE last_seen >= $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("query Agent: %w", err)
	}
	return len(agents), nil
}
