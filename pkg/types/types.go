package types

import "time"

// BatchStatus is the lifecycle state of a single batch's Stage 2 run.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchInProgress BatchStatus = "in_progress"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// AttackResult is one entry in a batch's append-only attack history. It is the
// primary ROI record: the review engine joins these across batches.
type AttackResult struct {
	Attack          string  `json:"attack"`
	NewCracks       int     `json:"newCracks"`
	DurationSeconds float64 `json:"durationSeconds"`
	CrackRate       float64 `json:"crackRate"`
}

// Feedback is the record of one batch's feedback run, populated only once
// the Feedback Analyzer has processed that batch's DIAMONDS.
type Feedback struct {
	RootsFound      int       `json:"rootsFound"`
	BetaAdded       int       `json:"betaAdded"`
	RulesAdded      int       `json:"rulesAdded"`
	CohortsGrown    []string  `json:"cohortsGrown,omitempty"`
	OraclePromoted  int       `json:"oraclePromoted"`
	StructuredCount int       `json:"structuredCount"`
	RandomCount     int       `json:"randomCount"`
	ProcessedAt     time.Time `json:"processedAt"`
}

// Batch is the single authoritative record for one batch's progress through
// Stage 2. Exactly one Batch exists per batch name in the state store.
type Batch struct {
	Name             string            `json:"name"`
	HashlistID       string            `json:"hashlistId"`
	HashCount        int               `json:"hashCount"`
	AttacksApplied   []string          `json:"attacksApplied"`
	AttacksRemaining []string          `json:"attacksRemaining"`
	TaskIDs          map[string]string `json:"taskIds"`
	Cracked          int               `json:"cracked"`
	AttackResults    []AttackResult    `json:"attackResults"`
	StartedAt        time.Time         `json:"startedAt,omitempty"`
	LastAttackAt     time.Time         `json:"lastAttackAt,omitempty"`
	CompletedAt      time.Time         `json:"completedAt,omitempty"`
	Status           BatchStatus       `json:"status"`
	Error            string            `json:"error,omitempty"`
	Feedback         *Feedback         `json:"feedback,omitempty"`
}

// AttackStats are the cross-batch aggregate statistics for one named attack,
// keyed by attack name in the state store. avgRate is recomputed on every
// completeAttack call rather than stored as an independent counter, so it can
// never drift from its inputs.
type AttackStats struct {
	Attempted      int     `json:"attempted"`
	TotalCracked   int     `json:"totalCracked"`
	TotalHashes    int     `json:"totalHashes"`
	AvgRate        float64 `json:"avgRate"`
	AvgTimeSeconds float64 `json:"avgTimeSeconds"`
}

// State is the full on-disk shape of a state store file: one Batch per batch
// name, one AttackStats per attack name, and the mutable attack order.
type State struct {
	Batches     map[string]*Batch      `json:"batches"`
	Stats       map[string]*AttackStats `json:"attackStats"`
	AttackOrder []string                `json:"attackOrder,omitempty"`
}

// NewState returns an empty, ready-to-use State.
func NewState() *State {
	return &State{
		Batches: make(map[string]*Batch),
		Stats:   make(map[string]*AttackStats),
	}
}
