package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lukasbauer/evervoice/internal/core"
)

// Store is the Postgres-backed record store.
type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Profile is the progression state of one user.
type Profile struct {
	UserID              string    `json:"user_id"`
	XP                  int       `json:"xp"`
	Energy              int       `json:"energy"`
	Tier                core.Tier `json:"tier"`
	LastInteractionDate time.Time `json:"last_interaction_date"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Transaction is one audit entry of the progression ledger.
type Transaction struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	XPDelta     int       `json:"xp_delta"`
	EnergyDelta int       `json:"energy_delta"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}

// Persona holds the system instructions for one (user, role) persona.
type Persona struct {
	UserID         string    `json:"user_id"`
	Role           core.Role `json:"role"`
	Content        string    `json:"content"`
	MemberNickname *string   `json:"member_nickname,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// MemoryFragment is one answered memory prompt.
type MemoryFragment struct {
	ID            int64     `json:"id"`
	UserID        string    `json:"user_id"`
	Role          core.Role `json:"role"`
	QuestionLabel string    `json:"question_label"`
	AnswerText    string    `json:"answer_text"`
	CreatedAt     time.Time `json:"created_at"`
}

// ShareToken binds a short code to an owner's persona.
type ShareToken struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Role      core.Role `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// VoiceIdentity is a provider voice handle owned by an account.
type VoiceIdentity struct {
	UserID    string    `json:"user_id"`
	VoiceID   string    `json:"voice_id"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

func readErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrNotFound
	}
	return fmt.Errorf("%w: %s: %w", core.ErrStorageRead, op, err)
}

func writeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", core.ErrStorageWrite, op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const profileColumns = `user_id, xp, energy, tier, last_interaction_date, created_at, updated_at`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	var tier string
	if err := row.Scan(&p.UserID, &p.XP, &p.Energy, &tier, &p.LastInteractionDate, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Tier = core.Tier(tier)
	return &p, nil
}

// ============================================================================
// Profile operations
// ============================================================================

// GetProfile returns the profile of a user or core.ErrNotFound.
func (s *Store) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	p, err := scanProfile(s.db.QueryRow(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE user_id = $1
	`, userID))
	if err != nil {
		return nil, readErr("get profile", err)
	}
	return p, nil
}

// EnsureProfile inserts the given defaults unless a profile already exists and
// returns the stored row either way.
func (s *Store) EnsureProfile(ctx context.Context, defaults Profile) (*Profile, error) {
	p, err := scanProfile(s.db.QueryRow(ctx, `
		INSERT INTO profiles (user_id, xp, energy, tier, last_interaction_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING `+profileColumns,
		defaults.UserID, defaults.XP, defaults.Energy, string(defaults.Tier), defaults.LastInteractionDate))
	if err != nil {
		return nil, writeErr("ensure profile", err)
	}
	return p, nil
}

// ApplyProfileDelta adds the deltas to xp and energy, clamping both at zero, and
// appends an audit entry when reason is set and a delta is non-zero. Both
// writes happen in one transaction.
func (s *Store) ApplyProfileDelta(ctx context.Context, userID string, xpDelta, energyDelta int, reason string) (*Profile, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, writeErr("begin delta", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p, err := applyDeltaTx(ctx, tx, userID, xpDelta, energyDelta, reason)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, writeErr("commit delta", err)
	}
	return p, nil
}

func applyDeltaTx(ctx context.Context, tx pgx.Tx, userID string, xpDelta, energyDelta int, reason string) (*Profile, error) {
	p, err := scanProfile(tx.QueryRow(ctx, `
		UPDATE profiles
		SET xp = GREATEST(0, xp + $2),
		    energy = GREATEST(0, energy + $3),
		    updated_at = NOW()
		WHERE user_id = $1
		RETURNING `+profileColumns,
		userID, xpDelta, energyDelta))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, writeErr("apply delta", err)
	}
	if err := insertTransactionTx(ctx, tx, userID, xpDelta, energyDelta, reason); err != nil {
		return nil, err
	}
	return p, nil
}

func insertTransactionTx(ctx context.Context, tx pgx.Tx, userID string, xpDelta, energyDelta int, reason string) error {
	if reason == "" || (xpDelta == 0 && energyDelta == 0) {
		return nil
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO transaction_logs (user_id, xp_delta, energy_delta, reason)
		VALUES ($1, $2, $3, $4)
	`, userID, xpDelta, energyDelta, reason)
	if err != nil {
		return writeErr("insert transaction", err)
	}
	return nil
}

// SettleInteraction moves last_interaction_date from expectedLast to today and
// applies energyDelta, but only if the stored date still equals expectedLast.
// The boolean result is false when another request settled first.
func (s *Store) SettleInteraction(ctx context.Context, userID string, expectedLast, today time.Time, energyDelta int, reason string) (*Profile, bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, false, writeErr("begin settle", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p, err := scanProfile(tx.QueryRow(ctx, `
		UPDATE profiles
		SET last_interaction_date = $3,
		    energy = GREATEST(0, energy + $4),
		    updated_at = NOW()
		WHERE user_id = $1 AND last_interaction_date = $2
		RETURNING `+profileColumns,
		userID, expectedLast, today, energyDelta))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, writeErr("settle interaction", err)
	}
	if err := insertTransactionTx(ctx, tx, userID, 0, energyDelta, reason); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, writeErr("commit settle", err)
	}
	return p, true, nil
}

// UpgradeTier sets the tier from `from` to `to` and grants the bonuses in the
// same transaction. The boolean result is false when the stored tier no longer
// equals `from`.
func (s *Store) UpgradeTier(ctx context.Context, userID string, from, to core.Tier, xpBonus, energyBonus int, reason string) (*Profile, bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, false, writeErr("begin upgrade", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE profiles SET tier = $3, updated_at = NOW()
		WHERE user_id = $1 AND tier = $2
	`, userID, string(from), string(to))
	if err != nil {
		return nil, false, writeErr("upgrade tier", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, false, nil
	}

	p, err := applyDeltaTx(ctx, tx, userID, xpBonus, energyBonus, reason)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, writeErr("commit upgrade", err)
	}
	return p, true, nil
}

// ListTransactions returns the most recent audit entries of a user, newest first.
func (s *Store) ListTransactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, xp_delta, energy_delta, reason, created_at
		FROM transaction_logs
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, readErr("list transactions", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.XPDelta, &t.EnergyDelta, &t.Reason, &t.CreatedAt); err != nil {
			return nil, readErr("scan transaction", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, readErr("list transactions", err)
	}
	return out, nil
}

// ============================================================================
// Training step completion
// ============================================================================

// CompleteTrainingStep records the first completion of a wizard step and grants
// xp for it in one transaction. Replays return first=false and grant nothing.
func (s *Store) CompleteTrainingStep(ctx context.Context, userID string, role core.Role, step, xp int, reason string) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, writeErr("begin step", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO training_steps (user_id, role, step)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, role, step) DO NOTHING
	`, userID, string(role), step)
	if err != nil {
		return false, writeErr("insert training step", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if _, err := applyDeltaTx(ctx, tx, userID, xp, 0, reason); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, writeErr("commit step", err)
	}
	return true, nil
}

// CompletedSteps lists the wizard steps a user has completed for a role.
func (s *Store) CompletedSteps(ctx context.Context, userID string, role core.Role) ([]int, error) {
	rows, err := s.db.Query(ctx, `
		SELECT step FROM training_steps
		WHERE user_id = $1 AND role = $2
		ORDER BY step
	`, userID, string(role))
	if err != nil {
		return nil, readErr("list steps", err)
	}
	defer rows.Close()

	var steps []int
	for rows.Next() {
		var step int
		if err := rows.Scan(&step); err != nil {
			return nil, readErr("scan step", err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// ============================================================================
// Persona and memory operations
// ============================================================================

// UpsertPersona inserts or replaces the persona summary for (user, role).
func (s *Store) UpsertPersona(ctx context.Context, p Persona) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO personas (user_id, role, content, member_nickname)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, role) DO UPDATE SET
			content = EXCLUDED.content,
			member_nickname = EXCLUDED.member_nickname,
			updated_at = NOW()
	`, p.UserID, string(p.Role), p.Content, p.MemberNickname)
	if err != nil {
		return writeErr("upsert persona", err)
	}
	return nil
}

// GetPersona returns the persona summary or core.ErrNotFound.
func (s *Store) GetPersona(ctx context.Context, userID string, role core.Role) (*Persona, error) {
	var p Persona
	var r string
	err := s.db.QueryRow(ctx, `
		SELECT user_id, role, content, member_nickname, updated_at
		FROM personas
		WHERE user_id = $1 AND role = $2
	`, userID, string(role)).Scan(&p.UserID, &r, &p.Content, &p.MemberNickname, &p.UpdatedAt)
	if err != nil {
		return nil, readErr("get persona", err)
	}
	p.Role = core.Role(r)
	return &p, nil
}

// InsertMemory appends a memory fragment. Fragments are never deduplicated.
func (s *Store) InsertMemory(ctx context.Context, m MemoryFragment) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO memories (user_id, role, question_label, answer_text)
		VALUES ($1, $2, $3, $4)
	`, m.UserID, string(m.Role), m.QuestionLabel, m.AnswerText)
	if err != nil {
		return writeErr("insert memory", err)
	}
	return nil
}

// ListMemories returns the fragments of (user, role) in insertion order.
func (s *Store) ListMemories(ctx context.Context, userID string, role core.Role) ([]MemoryFragment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, role, question_label, answer_text, created_at
		FROM memories
		WHERE user_id = $1 AND role = $2
		ORDER BY id ASC
	`, userID, string(role))
	if err != nil {
		return nil, readErr("list memories", err)
	}
	defer rows.Close()

	var out []MemoryFragment
	for rows.Next() {
		var m MemoryFragment
		var r string
		if err := rows.Scan(&m.ID, &m.UserID, &r, &m.QuestionLabel, &m.AnswerText, &m.CreatedAt); err != nil {
			return nil, readErr("scan memory", err)
		}
		m.Role = core.Role(r)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, readErr("list memories", err)
	}
	return out, nil
}

// ============================================================================
// Share tokens and voice identities
// ============================================================================

// InsertShareToken stores a new token. A duplicate code yields core.ErrTokenExists.
func (s *Store) InsertShareToken(ctx context.Context, t ShareToken) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO share_tokens (token, user_id, role)
		VALUES ($1, $2, $3)
	`, t.Token, t.UserID, string(t.Role))
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrTokenExists
		}
		return writeErr("insert share token", err)
	}
	return nil
}

// GetShareToken resolves a token or returns core.ErrNotFound.
func (s *Store) GetShareToken(ctx context.Context, token string) (*ShareToken, error) {
	var t ShareToken
	var r string
	err := s.db.QueryRow(ctx, `
		SELECT token, user_id, role, created_at
		FROM share_tokens
		WHERE token = $1
	`, token).Scan(&t.Token, &t.UserID, &r, &t.CreatedAt)
	if err != nil {
		return nil, readErr("get share token", err)
	}
	t.Role = core.Role(r)
	return &t, nil
}

// SaveVoiceIdentity records that a provider voice now belongs to an account.
func (s *Store) SaveVoiceIdentity(ctx context.Context, v VoiceIdentity) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO voice_identities (user_id, voice_id, source)
		VALUES ($1, $2, $3)
		ON CONFLICT (voice_id) DO UPDATE SET user_id = EXCLUDED.user_id, source = EXCLUDED.source
	`, v.UserID, v.VoiceID, v.Source)
	if err != nil {
		return writeErr("save voice identity", err)
	}
	return nil
}

// ListVoiceIdentities returns the voices owned by a user.
func (s *Store) ListVoiceIdentities(ctx context.Context, userID string) ([]VoiceIdentity, error) {
	rows, err := s.db.Query(ctx, `
		SELECT user_id, voice_id, source, created_at
		FROM voice_identities
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, readErr("list voice identities", err)
	}
	defer rows.Close()

	var out []VoiceIdentity
	for rows.Next() {
		var v VoiceIdentity
		if err := rows.Scan(&v.UserID, &v.VoiceID, &v.Source, &v.CreatedAt); err != nil {
			return nil, readErr("scan voice identity", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
