package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"files_manager/server/fileman/domain"
)

const fileColumns = `id, user_id, name, type, is_public, parent_id, local_path, created_at`

type FileRepository struct {
	pool *pgxpool.Pool
}

func NewFileRepository(pool *pgxpool.Pool) *FileRepository {
	return &FileRepository{pool: pool}
}

func scanFile(row pgx.Row) (domain.FileRecord, error) {
	var item domain.FileRecord
	err := row.Scan(&item.ID, &item.UserID, &item.Name, &item.Type, &item.IsPublic, &item.ParentID, &item.LocalPath, &item.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.FileRecord{}, domain.ErrFileNotFound
	}
	return item, err
}

func (r *FileRepository) Create(ctx context.Context, item domain.FileRecord) (domain.FileRecord, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO files(id, user_id, name, type, is_public, parent_id, local_path)
		VALUES($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, item.ID, item.UserID, item.Name, item.Type, item.IsPublic, item.ParentID, item.LocalPath).Scan(&item.CreatedAt)
	return item, err
}

// FindOwned matches on both id and owner, so a file owned by someone else is
// indistinguishable from a missing one.
func (r *FileRepository) FindOwned(ctx context.Context, fileID, userID string) (domain.FileRecord, error) {
	return scanFile(r.pool.QueryRow(ctx, `
		SELECT `+fileColumns+`
		FROM files
		WHERE id=$1 AND user_id=$2
	`, fileID, userID))
}

func (r *FileRepository) FindByID(ctx context.Context, fileID string) (domain.FileRecord, error) {
	return scanFile(r.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id=$1`, fileID))
}

func (r *FileRepository) ListByParent(ctx context.Context, userID, parentID string, page, pageSize int) ([]domain.FileRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+fileColumns+`
		FROM files
		WHERE user_id=$1 AND parent_id=$2
		ORDER BY created_at, id
		LIMIT $3 OFFSET $4
	`, userID, parentID, pageSize, page*pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.FileRecord, 0)
	for rows.Next() {
		item, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *FileRepository) SetPublic(ctx context.Context, fileID, userID string, public bool) (domain.FileRecord, error) {
	return scanFile(r.pool.QueryRow(ctx, `
		UPDATE files SET is_public=$3
		WHERE id=$1 AND user_id=$2
		RETURNING `+fileColumns, fileID, userID, public))
}

func (r *FileRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM files`).Scan(&n)
	return n, err
}
