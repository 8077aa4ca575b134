package proposal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nanoclaw/ops/internal/persistence"
)

// ErrEmptyActions is returned by Enqueue when the proposal has no actions;
// spec requires actions be non-empty at creation.
var ErrEmptyActions = errors.New("proposal: actions must be non-empty")

// mirrorDoc is the shape of the flat-JSON journal mirror, action-queue.json.
type mirrorDoc struct {
	Proposals []wireProposal `json:"proposals"`
}

// Store is the sqlite-backed proposal journal, with a flat-JSON mirror
// maintained alongside every write for operators without a sqlite client.
// Single-writer discipline is enforced with an in-process mutex; readers
// still go through the database so a second process (if one existed) would
// see a consistent snapshot.
type Store struct {
	db     *sql.DB
	mirror *persistence.Document[mirrorDoc]
	mu     sync.Mutex
}

// Open opens the proposal store's sqlite database and flat-file mirror
// under dataDir.
func Open(dataDir string) (*Store, error) {
	db, err := persistence.Open(filepath.Join(dataDir, "nanoclaw.db"))
	if err != nil {
		return nil, err
	}
	mirror := persistence.NewDocument(filepath.Join(dataDir, "action-queue.json"), mirrorDoc{})
	if err := mirror.Load(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load action-queue.json: %w", err)
	}
	return &Store{db: db, mirror: mirror}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnqueueProposal persists p (with a freshly generated id, status proposed,
// createdAt now) and returns the stored proposal.
func (s *Store) EnqueueProposal(p Proposal) (Proposal, error) {
	if len(p.Actions) == 0 {
		return Proposal{}, ErrEmptyActions
	}
	p.ID = uuid.NewString()
	p.CreatedAt = time.Now().UTC()
	p.Status = StatusProposed

	wire, err := toWire(p)
	if err != nil {
		return Proposal{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	actionsJSON, err := json.Marshal(wire.Actions)
	if err != nil {
		return Proposal{}, err
	}
	rawPlanJSON := actionsJSON // the raw planner JSON isn't separately tracked by the store; dispatch uses actionsJSON directly

	_, err = s.db.Exec(
		`INSERT INTO proposals (id, chat_id, group_folder, request_text, status, actions_json, raw_plan_json, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ChatID, p.GroupFolder, p.RequestText, string(p.Status), string(actionsJSON), string(rawPlanJSON), p.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Proposal{}, fmt.Errorf("insert proposal: %w", err)
	}

	if err := s.appendMirror(wire); err != nil {
		return Proposal{}, fmt.Errorf("update action-queue.json: %w", err)
	}

	return p, nil
}

func (s *Store) appendMirror(w wireProposal) error {
	return s.mirror.Update(func(doc *mirrorDoc) {
		doc.Proposals = append(doc.Proposals, w)
	})
}

func (s *Store) replaceMirror(w wireProposal) error {
	return s.mirror.Update(func(doc *mirrorDoc) {
		for i := range doc.Proposals {
			if doc.Proposals[i].ID == w.ID {
				doc.Proposals[i] = w
				return
			}
		}
		doc.Proposals = append(doc.Proposals, w)
	})
}

const proposalColumns = `id, chat_id, group_folder, request_text, status, actions_json, created_at, decided_at, decision_reason, decided_by`

// GetByID returns the proposal with the given id, or nil if none exists.
func (s *Store) GetByID(id string) (*Proposal, error) {
	row := s.db.QueryRow(`SELECT `+proposalColumns+` FROM proposals WHERE id = ?`, id)
	return scanProposal(row)
}

// ListPendingByChat returns up to limit proposals in status "proposed" for
// chatID, most recent first. limit <= 0 means no cap.
func (s *Store) ListPendingByChat(chatID int64, limit int) ([]Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE chat_id = ? AND status = ? ORDER BY created_at DESC`
	args := []any{chatID, string(StatusProposed)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Proposal
	for rows.Next() {
		p, err := scanProposalRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Decide transitions a proposal from proposed to approved or denied. It
// returns (nil, nil) if the proposal is missing or already decided — the
// caller distinguishes "stale" from "error" by checking err first, then
// whether the returned proposal is nil.
func (s *Store) Decide(id string, decision Status, reason, decidedBy string) (*Proposal, error) {
	if decision != StatusApproved && decision != StatusDenied {
		return nil, fmt.Errorf("decide: invalid decision %q", decision)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if current == nil || current.Status != StatusProposed {
		return nil, nil
	}

	now := time.Now().UTC()
	current.Status = decision
	current.DecidedAt = &now
	current.DecisionReason = reason
	current.DecidedBy = decidedBy

	res, err := s.db.Exec(
		`UPDATE proposals SET status = ?, decided_at = ?, decision_reason = ?, decided_by = ? WHERE id = ? AND status = ?`,
		string(decision), now.Format(time.RFC3339Nano), reason, decidedBy, id, string(StatusProposed),
	)
	if err != nil {
		return nil, fmt.Errorf("update proposal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Lost the race to a concurrent decide between the read and the
		// write above; report "already decided" rather than overwriting.
		return nil, nil
	}

	wire, err := toWire(*current)
	if err != nil {
		return nil, err
	}
	if err := s.replaceMirror(wire); err != nil {
		return nil, fmt.Errorf("update action-queue.json: %w", err)
	}

	return current, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProposal(row rowScanner) (*Proposal, error) {
	p, err := scanProposalRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanProposalRow(row rowScanner) (Proposal, error) {
	var id, groupFolder, requestText, status, actionsJSON, createdAt string
	var chatID int64
	var decidedAt, decisionReason, decidedBy sql.NullString
	if err := row.Scan(&id, &chatID, &groupFolder, &requestText, &status, &actionsJSON, &createdAt, &decidedAt, &decisionReason, &decidedBy); err != nil {
		return Proposal{}, err
	}

	var rawActions []json.RawMessage
	if err := json.Unmarshal([]byte(actionsJSON), &rawActions); err != nil {
		return Proposal{}, fmt.Errorf("decode actions_json: %w", err)
	}
	w := wireProposal{
		ID:          id,
		Status:      Status(status),
		ChatID:      chatID,
		GroupFolder: groupFolder,
		RequestText: requestText,
		Actions:     rawActions,
	}
	if createdAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			w.CreatedAt = t
		}
	}
	if decidedAt.Valid && decidedAt.String != "" {
		if t, err := time.Parse(time.RFC3339Nano, decidedAt.String); err == nil {
			w.DecidedAt = &t
		}
	}
	if decisionReason.Valid {
		w.DecisionReason = decisionReason.String
	}
	if decidedBy.Valid {
		w.DecidedBy = decidedBy.String
	}
	return fromWire(w)
}
