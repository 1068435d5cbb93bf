// Package store implements the Persistence Layer: a sqlite-backed
// store for sessions, QA records, and evaluation scores. The vector index
// is a separate, opaque store and is not managed here.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hwk-1212/rag-eval-project/internal/ragtypes"
)

// Store persists sessions, QA records, and evaluation scores.
type Store struct {
	db *sql.DB
}

// Open opens or creates a sqlite database at path and bootstraps its schema.
// Parent directories are created if they do not exist.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: enable foreign keys: %w", err)
	}

	if err := bootstrap(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: bootstrap schema: %w", err)
	}

	return &Store{db: db}, nil
}

func bootstrap(db *sql.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		create_time TIMESTAMP NOT NULL,
		update_time TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS qa_records (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		technique_name TEXT NOT NULL,
		query TEXT NOT NULL,
		answer TEXT NOT NULL,
		retrieved_chunks_json TEXT NOT NULL,
		trace_json TEXT NOT NULL,
		retrieval_time_ns INTEGER NOT NULL,
		generation_time_ns INTEGER NOT NULL,
		total_time_ns INTEGER NOT NULL,
		error_kind TEXT NOT NULL DEFAULT '',
		create_time TIMESTAMP NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE INDEX IF NOT EXISTS idx_qa_records_session_id ON qa_records(session_id);

	CREATE TABLE IF NOT EXISTS evaluations (
		id TEXT PRIMARY KEY,
		qa_record_id TEXT NOT NULL,
		score_type TEXT NOT NULL,
		relevance REAL,
		faithfulness REAL,
		coherence REAL,
		fluency REAL,
		conciseness REAL,
		overall REAL,
		evaluator_name TEXT NOT NULL,
		metadata_json TEXT NOT NULL DEFAULT '{}',
		create_time TIMESTAMP NOT NULL,
		FOREIGN KEY (qa_record_id) REFERENCES qa_records(id)
	);

	CREATE INDEX IF NOT EXISTS idx_evaluations_qa_record_id ON evaluations(qa_record_id);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new session, stamping create/update time.
func (s *Store) CreateSession(ctx context.Context, sess *ragtypes.Session) error {
	now := time.Now()
	sess.CreateTime = now
	sess.UpdateTime = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, title, create_time, update_time) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.Title, sess.CreateTime, sess.UpdateTime,
	)
	if err != nil {
		return fmt.Errorf("store: create session: %w", err)
	}
	return nil
}

// GetSession returns a session by ID, or ErrNotFound.
func (s *Store) GetSession(ctx context.Context, id string) (*ragtypes.Session, error) {
	var sess ragtypes.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, create_time, update_time FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Title, &sess.CreateTime, &sess.UpdateTime)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get session: %w", err)
	}
	return &sess, nil
}

// ListSessions returns all sessions ordered by most recently created first.
func (s *Store) ListSessions(ctx context.Context) ([]ragtypes.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, create_time, update_time FROM sessions ORDER BY create_time DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []ragtypes.Session
	for rows.Next() {
		var sess ragtypes.Session
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.CreateTime, &sess.UpdateTime); err != nil {
			return nil, fmt.Errorf("store: scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// SaveQARecords writes every record inside a single transaction, matching
// the fan-out dispatcher's "one QARecord per TechniqueResult, one
// transaction per request" requirement. Every record must already reference
// an existing session; the caller is responsible for that invariant.
func (s *Store) SaveQARecords(ctx context.Context, records []ragtypes.QARecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO qa_records (
			id, session_id, technique_name, query, answer,
			retrieved_chunks_json, trace_json,
			retrieval_time_ns, generation_time_ns, total_time_ns,
			error_kind, create_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("store: prepare qa_records insert: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		r := &records[i]
		if r.CreateTime.IsZero() {
			r.CreateTime = time.Now()
		}
		chunksJSON, err := json.Marshal(r.RetrievedChunks)
		if err != nil {
			return fmt.Errorf("store: marshal retrieved chunks: %w", err)
		}
		traceJSON, err := json.Marshal(r.Trace)
		if err != nil {
			return fmt.Errorf("store: marshal trace: %w", err)
		}
		_, err = stmt.ExecContext(ctx,
			r.ID, r.SessionID, r.TechniqueName, r.QueryText, r.AnswerText,
			string(chunksJSON), string(traceJSON),
			r.RetrievalTime.Nanoseconds(), r.GenerationTime.Nanoseconds(), r.TotalTime.Nanoseconds(),
			string(r.ErrorKind), r.CreateTime,
		)
		if err != nil {
			return fmt.Errorf("store: insert qa_record %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit qa_records: %w", err)
	}
	return nil
}

// GetQARecord returns a QA record by ID, or ErrNotFound.
func (s *Store) GetQARecord(ctx context.Context, id string) (*ragtypes.QARecord, error) {
	var r ragtypes.QARecord
	var chunksJSON, traceJSON string
	var retrievalNS, generationNS, totalNS int64
	var errorKind string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, technique_name, query, answer,
			retrieved_chunks_json, trace_json,
			retrieval_time_ns, generation_time_ns, total_time_ns,
			error_kind, create_time
		FROM qa_records WHERE id = ?
	`, id).Scan(
		&r.ID, &r.SessionID, &r.TechniqueName, &r.QueryText, &r.AnswerText,
		&chunksJSON, &traceJSON,
		&retrievalNS, &generationNS, &totalNS,
		&errorKind, &r.CreateTime,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: qa_record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get qa_record: %w", err)
	}

	if err := json.Unmarshal([]byte(chunksJSON), &r.RetrievedChunks); err != nil {
		return nil, fmt.Errorf("store: unmarshal retrieved chunks: %w", err)
	}
	if err := json.Unmarshal([]byte(traceJSON), &r.Trace); err != nil {
		return nil, fmt.Errorf("store: unmarshal trace: %w", err)
	}
	r.RetrievalTime = time.Duration(retrievalNS)
	r.GenerationTime = time.Duration(generationNS)
	r.TotalTime = time.Duration(totalNS)
	r.ErrorKind = ragtypes.ErrorKind(errorKind)

	return &r, nil
}

// ListQARecordsBySession returns every QA record for a session, ordered by
// create_time ascending.
func (s *Store) ListQARecordsBySession(ctx context.Context, sessionID string) ([]ragtypes.QARecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM qa_records WHERE session_id = ? ORDER BY create_time ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: list qa_records: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan qa_record id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]ragtypes.QARecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.GetQARecord(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// SaveEvaluation persists one evaluator's scoring pass over a QA record.
func (s *Store) SaveEvaluation(ctx context.Context, e *ragtypes.EvaluationScore) error {
	if e.CreateTime.IsZero() {
		e.CreateTime = time.Now()
	}
	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("store: marshal evaluation metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO evaluations (
			id, qa_record_id, score_type,
			relevance, faithfulness, coherence, fluency, conciseness, overall,
			evaluator_name, metadata_json, create_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.QARecordID, string(e.ScoreType),
		nullableDimension(e.Dimensions, "relevance"),
		nullableDimension(e.Dimensions, "faithfulness"),
		nullableDimension(e.Dimensions, "coherence"),
		nullableDimension(e.Dimensions, "fluency"),
		nullableDimension(e.Dimensions, "conciseness"),
		e.OverallScore,
		e.EvaluatorName, string(metadataJSON), e.CreateTime,
	)
	if err != nil {
		return fmt.Errorf("store: insert evaluation: %w", err)
	}
	return nil
}

// ListEvaluationsByQARecord returns every evaluation recorded against a QA
// record, most recent first.
func (s *Store) ListEvaluationsByQARecord(ctx context.Context, qaRecordID string) ([]ragtypes.EvaluationScore, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, qa_record_id, score_type,
			relevance, faithfulness, coherence, fluency, conciseness, overall,
			evaluator_name, metadata_json, create_time
		FROM evaluations WHERE qa_record_id = ? ORDER BY create_time DESC
	`, qaRecordID)
	if err != nil {
		return nil, fmt.Errorf("store: list evaluations: %w", err)
	}
	defer rows.Close()

	var out []ragtypes.EvaluationScore
	for rows.Next() {
		var e ragtypes.EvaluationScore
		var scoreType, metadataJSON string
		var relevance, faithfulness, coherence, fluency, conciseness, overall sql.NullFloat64

		if err := rows.Scan(
			&e.ID, &e.QARecordID, &scoreType,
			&relevance, &faithfulness, &coherence, &fluency, &conciseness, &overall,
			&e.EvaluatorName, &metadataJSON, &e.CreateTime,
		); err != nil {
			return nil, fmt.Errorf("store: scan evaluation: %w", err)
		}

		e.ScoreType = ragtypes.ScoreType(scoreType)
		e.Dimensions = map[string]float64{}
		setIfValid(e.Dimensions, "relevance", relevance)
		setIfValid(e.Dimensions, "faithfulness", faithfulness)
		setIfValid(e.Dimensions, "coherence", coherence)
		setIfValid(e.Dimensions, "fluency", fluency)
		setIfValid(e.Dimensions, "conciseness", conciseness)
		if overall.Valid {
			v := overall.Float64
			e.OverallScore = &v
		}
		if err := json.Unmarshal([]byte(metadataJSON), &e.Metadata); err != nil {
			return nil, fmt.Errorf("store: unmarshal evaluation metadata: %w", err)
		}

		out = append(out, e)
	}
	return out, rows.Err()
}

func nullableDimension(dims map[string]float64, key string) any {
	v, ok := dims[key]
	if !ok {
		return nil
	}
	return v
}

func setIfValid(dst map[string]float64, key string, v sql.NullFloat64) {
	if v.Valid {
		dst[key] = v.Float64
	}
}
