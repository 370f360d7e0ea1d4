package modelstore

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/ghmm/internal/ghmm"
	"github.com/banshee-data/ghmm/internal/timeutil"
	"github.com/banshee-data/ghmm/internal/topology"
	"github.com/banshee-data/ghmm/internal/version"
	"github.com/google/uuid"
)

// ErrModelNotFound indicates an unknown model ID.
var ErrModelNotFound = errors.New("modelstore: model not found")

// ModelRecord describes a stored model without loading its graph.
type ModelRecord struct {
	ModelID         string      `json:"model_id"`
	CreatedAtNs     int64       `json:"created_at_ns"`
	UpdatedAtNs     *int64      `json:"updated_at_ns,omitempty"`
	Version         string      `json:"version"`
	Params          ghmm.Params `json:"params"`
	TrajectoryCount int         `json:"trajectory_count"`
	Description     string      `json:"description,omitempty"`
	States          int         `json:"states"`
	Transitions     int         `json:"transitions"`
}

// Store saves and loads models.
type Store struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewStore creates a Store over db. A nil clock uses wall time.
func NewStore(db *sql.DB, clock timeutil.Clock) *Store {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Store{db: db, clock: clock}
}

// Save writes a snapshot of m as a new model and returns its ID.
func (s *Store) Save(m *ghmm.Model, description string) (string, error) {
	paramsJSON, err := json.Marshal(m.Params())
	if err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}
	id := uuid.New().String()
	g, count := m.Snapshot()

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO models (
			model_id, created_at_ns, version, params_json, trajectory_count, description
		) VALUES (?, ?, ?, ?, ?, ?)
	`, id, s.clock.Now().UnixNano(), version.Version, string(paramsJSON), count, nullString(description))
	if err != nil {
		return "", fmt.Errorf("insert model: %w", err)
	}
	if err := insertGraph(tx, id, g); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit save: %w", err)
	}
	return id, nil
}

// Replace overwrites the graph and trajectory count of model id with a
// snapshot of m, typically after further learning.
func (s *Store) Replace(id string, m *ghmm.Model) error {
	g, count := m.Snapshot()
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE models SET trajectory_count = ?, updated_at_ns = ? WHERE model_id = ?
	`, count, s.clock.Now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("update model: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	if _, err := tx.Exec(`DELETE FROM model_transitions WHERE model_id = ?`, id); err != nil {
		return fmt.Errorf("delete transitions: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM model_states WHERE model_id = ?`, id); err != nil {
		return fmt.Errorf("delete states: %w", err)
	}
	if err := insertGraph(tx, id, g); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

func insertGraph(tx *sql.Tx, id string, g *topology.Graph) error {
	stateStmt, err := tx.Prepare(`
		INSERT INTO model_states (model_id, state_id, centroid, probability, learned)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare state insert: %w", err)
	}
	defer stateStmt.Close()
	for _, st := range g.States() {
		if _, err := stateStmt.Exec(id, int(st.ID), encodeCentroid(st.Centroid), st.Probability, st.Learned); err != nil {
			return fmt.Errorf("insert state %d: %w", st.ID, err)
		}
	}

	edgeStmt, err := tx.Prepare(`
		INSERT INTO model_transitions (model_id, seq, from_state, to_state, probability, learned)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare transition insert: %w", err)
	}
	defer edgeStmt.Close()
	for seq, e := range g.Transitions() {
		if _, err := edgeStmt.Exec(id, seq, int(e.From), int(e.To), e.Probability, e.Learned); err != nil {
			return fmt.Errorf("insert transition %d->%d: %w", e.From, e.To, err)
		}
	}
	return nil
}

// Get returns the record of model id.
func (s *Store) Get(id string) (*ModelRecord, error) {
	row := s.db.QueryRow(`
		SELECT m.model_id, m.created_at_ns, m.updated_at_ns, m.version, m.params_json,
		       m.trajectory_count, m.description,
		       (SELECT COUNT(*) FROM model_states WHERE model_id = m.model_id),
		       (SELECT COUNT(*) FROM model_transitions WHERE model_id = m.model_id)
		FROM models m
		WHERE m.model_id = ?
	`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get model: %w", err)
	}
	return rec, nil
}

// List returns every stored model, newest first.
func (s *Store) List() ([]*ModelRecord, error) {
	rows, err := s.db.Query(`
		SELECT m.model_id, m.created_at_ns, m.updated_at_ns, m.version, m.params_json,
		       m.trajectory_count, m.description,
		       (SELECT COUNT(*) FROM model_states WHERE model_id = m.model_id),
		       (SELECT COUNT(*) FROM model_transitions WHERE model_id = m.model_id)
		FROM models m
		ORDER BY m.created_at_ns DESC, m.model_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	var records []*ModelRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan model row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate models: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*ModelRecord, error) {
	var rec ModelRecord
	var updatedAtNs sql.NullInt64
	var description sql.NullString
	var paramsJSON string
	if err := row.Scan(
		&rec.ModelID,
		&rec.CreatedAtNs,
		&updatedAtNs,
		&rec.Version,
		&paramsJSON,
		&rec.TrajectoryCount,
		&description,
		&rec.States,
		&rec.Transitions,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(paramsJSON), &rec.Params); err != nil {
		return nil, fmt.Errorf("decode params of %s: %w", rec.ModelID, err)
	}
	if updatedAtNs.Valid {
		v := updatedAtNs.Int64
		rec.UpdatedAtNs = &v
	}
	if description.Valid {
		rec.Description = description.String
	}
	return &rec, nil
}

// Load rebuilds model id with its learned graph.
func (s *Store) Load(id string) (*ghmm.Model, error) {
	rec, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	g, err := s.loadGraph(id, rec.Params.FullDim)
	if err != nil {
		return nil, err
	}
	m, err := ghmm.Restore(rec.Params, g, rec.TrajectoryCount)
	if err != nil {
		return nil, fmt.Errorf("restore model %s: %w", id, err)
	}
	return m, nil
}

func (s *Store) loadGraph(id string, dim int) (*topology.Graph, error) {
	g := topology.New(dim)

	rows, err := s.db.Query(`
		SELECT state_id, centroid, probability, learned
		FROM model_states WHERE model_id = ? ORDER BY state_id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query states: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var stateID int
		var blob []byte
		var probability float64
		var learned bool
		if err := rows.Scan(&stateID, &blob, &probability, &learned); err != nil {
			return nil, fmt.Errorf("scan state row: %w", err)
		}
		centroid, err := decodeCentroid(blob)
		if err != nil {
			return nil, fmt.Errorf("state %d: %w", stateID, err)
		}
		got, err := g.AddState(centroid)
		if err != nil {
			return nil, fmt.Errorf("state %d: %w", stateID, err)
		}
		if int(got) != stateID {
			return nil, fmt.Errorf("state ids are not dense: got %d, want %d", stateID, got)
		}
		st := g.State(got)
		st.Probability, st.Learned = probability, learned
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate states: %w", err)
	}

	edges, err := s.db.Query(`
		SELECT from_state, to_state, probability, learned
		FROM model_transitions WHERE model_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer edges.Close()
	for edges.Next() {
		var from, to int
		var probability float64
		var learned bool
		if err := edges.Scan(&from, &to, &probability, &learned); err != nil {
			return nil, fmt.Errorf("scan transition row: %w", err)
		}
		e, _, err := g.Connect(topology.StateID(from), topology.StateID(to))
		if err != nil {
			return nil, fmt.Errorf("transition %d->%d: %w", from, to, err)
		}
		e.Probability, e.Learned = probability, learned
	}
	if err := edges.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return g, nil
}

// Delete removes model id and its graph.
func (s *Store) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM models WHERE model_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete model: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete model: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	return nil
}

// encodeCentroid packs a centroid as little-endian float64s.
func encodeCentroid(c []float64) []byte {
	buf := make([]byte, 8*len(c))
	for i, v := range c {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

func decodeCentroid(buf []byte) ([]float64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("centroid blob has %d bytes, not a multiple of 8", len(buf))
	}
	c := make([]float64, len(buf)/8)
	for i := range c {
		c[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return c, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
