package db

import (
	"context"
	"errors"

	"group-ride/internal/group-service/core/domain/model"
	"group-ride/internal/group-service/core/myerrors"
	"group-ride/internal/group-service/core/ports"

	"github.com/jackc/pgx/v5"
)

type ProfileRepo struct {
	db *DB
}

var _ ports.IProfileRepo = (*ProfileRepo)(nil)

func NewProfileRepo(db *DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

func (r *ProfileRepo) Get(ctx context.Context, userID string) (model.Profile, error) {
	var p model.Profile
	err := r.db.pool.QueryRow(ctx,
		`SELECT user_id, name, image_url FROM rider_profiles WHERE user_id = $1`, userID,
	).Scan(&p.UserID, &p.Name, &p.ImageURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Profile{}, myerrors.ErrNotFound
	}
	if err != nil {
		return model.Profile{}, err
	}
	return p, nil
}
