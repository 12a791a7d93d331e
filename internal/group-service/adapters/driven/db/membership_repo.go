package db

import (
	"context"
	"errors"

	"group-ride/internal/group-service/core/domain/model"
	"group-ride/internal/group-service/core/myerrors"
	"group-ride/internal/group-service/core/ports"
	"group-ride/internal/membership"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

type MembershipRepo struct {
	db *DB
}

var _ ports.IMembershipRepo = (*MembershipRepo)(nil)

func NewMembershipRepo(db *DB) *MembershipRepo {
	return &MembershipRepo{db: db}
}

func (r *MembershipRepo) Get(ctx context.Context, groupID, userID string) (model.Membership, error) {
	q := `SELECT group_id, user_id, status, is_host, created_at, updated_at
		FROM group_members WHERE group_id = $1 AND user_id = $2`

	return scanMembership(r.db.pool.QueryRow(ctx, q, groupID, userID))
}

func (r *MembershipRepo) Host(ctx context.Context, groupID string) (model.Membership, error) {
	q := `SELECT group_id, user_id, status, is_host, created_at, updated_at
		FROM group_members WHERE group_id = $1 AND is_host`

	return scanMembership(r.db.pool.QueryRow(ctx, q, groupID))
}

func (r *MembershipRepo) Create(ctx context.Context, m model.Membership) error {
	q := `INSERT INTO group_members (group_id, user_id, status, is_host, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (group_id, user_id) DO NOTHING`

	_, err := r.db.pool.Exec(ctx, q, m.GroupID, m.UserID, string(m.Status), m.IsHost, m.CreatedAt, m.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return myerrors.ErrHostTaken
	}
	return err
}

func (r *MembershipRepo) SetStatus(ctx context.Context, groupID, userID string, status membership.Status) error {
	q := `UPDATE group_members SET status = $3, updated_at = now()
		WHERE group_id = $1 AND user_id = $2`

	tag, err := r.db.pool.Exec(ctx, q, groupID, userID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return myerrors.ErrNotFound
	}
	return nil
}

func (r *MembershipRepo) DeleteGroup(ctx context.Context, groupID string) error {
	_, err := r.db.pool.Exec(ctx, `DELETE FROM group_members WHERE group_id = $1`, groupID)
	return err
}

func scanMembership(row pgx.Row) (model.Membership, error) {
	var (
		m      model.Membership
		status string
	)
	err := row.Scan(&m.GroupID, &m.UserID, &status, &m.IsHost, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Membership{}, myerrors.ErrNotFound
	}
	if err != nil {
		return model.Membership{}, err
	}
	m.Status = membership.Status(status)
	return m, nil
}
