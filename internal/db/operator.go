package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Operator is a console account. PasswordHash is a bcrypt hash and is never
// serialized.
type Operator struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateOperator inserts a new account. Returns ErrConflict when the email
// is already registered.
func (db *DB) CreateOperator(ctx context.Context, email, passwordHash, role string, now time.Time) (*Operator, error) {
	if role == "" {
		role = "analyst"
	}

	result, err := db.ExecContext(ctx, `
		INSERT INTO operators (email, password_hash, role, created_at_ms)
		VALUES (?, ?, ?, ?)`,
		email, passwordHash, role, now.UnixMilli())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil, fmt.Errorf("operator %s: %w", email, ErrConflict)
		}
		return nil, fmt.Errorf("failed to insert operator: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get operator id: %w", err)
	}
	return &Operator{
		ID:           id,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now.UTC(),
	}, nil
}

// GetOperatorByEmail looks up an account for login.
func (db *DB) GetOperatorByEmail(ctx context.Context, email string) (*Operator, error) {
	var o Operator
	var createdMs int64
	err := db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, role, created_at_ms
		FROM operators WHERE email = ?`, email).
		Scan(&o.ID, &o.Email, &o.PasswordHash, &o.Role, &createdMs)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("operator %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operator: %w", err)
	}
	o.CreatedAt = time.UnixMilli(createdMs).UTC()
	return &o, nil
}

// CountOperators reports the total number of accounts, used by startup
// seeding.
func (db *DB) CountOperators(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM operators`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count operators: %w", err)
	}
	return n, nil
}
