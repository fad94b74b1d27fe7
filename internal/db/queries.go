package db

import (
	"database/sql"

	"github.com/hpungsan/flowgen/internal/errors"
	"github.com/hpungsan/flowgen/internal/upload"
)

// InsertUpload stores a new upload.
func InsertUpload(db *sql.DB, u *upload.Upload) error {
	query := `
		INSERT INTO uploads (
			id, source_name, archive, archive_bytes,
			image_count, group_count, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query,
		u.ID, u.SourceName, u.Archive, len(u.Archive),
		u.ImageCount, u.GroupCount, u.CreatedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// SetCounts records the gallery size built from an upload's archive.
func SetCounts(db *sql.DB, id string, imageCount, groupCount int) error {
	result, err := db.Exec(`UPDATE uploads SET image_count = ?, group_count = ? WHERE id = ?`,
		imageCount, groupCount, id)
	if err != nil {
		return errors.NewInternal(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound("upload", id)
	}
	return nil
}

// GetUpload retrieves an upload, including its archive, by ULID.
func GetUpload(db *sql.DB, id string) (*upload.Upload, error) {
	query := `
		SELECT id, source_name, archive, image_count, group_count, created_at
		FROM uploads
		WHERE id = ?
	`

	var u upload.Upload
	err := db.QueryRow(query, id).Scan(
		&u.ID, &u.SourceName, &u.Archive, &u.ImageCount, &u.GroupCount, &u.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("upload", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &u, nil
}

// ListUploads returns upload summaries, newest first, and the total count.
func ListUploads(db *sql.DB, limit, offset int) ([]upload.Summary, int, error) {
	var total int
	if err := db.QueryRow(`SELECT COUNT(*) FROM uploads`).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := `
		SELECT id, source_name, archive_bytes, image_count, group_count, created_at
		FROM uploads
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := db.Query(query, limit, offset)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var summaries []upload.Summary
	for rows.Next() {
		var s upload.Summary
		if err := rows.Scan(&s.ID, &s.SourceName, &s.ArchiveBytes, &s.ImageCount, &s.GroupCount, &s.CreatedAt); err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	return summaries, total, nil
}

// DeleteOlderThan removes uploads created before cutoff (Unix seconds).
func DeleteOlderThan(db *sql.DB, cutoff int64) (int, error) {
	result, err := db.Exec(`DELETE FROM uploads WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(n), nil
}

// TrimToNewest keeps only the newest keep uploads. keep <= 0 is a no-op.
func TrimToNewest(db *sql.DB, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	query := `
		DELETE FROM uploads
		WHERE id NOT IN (
			SELECT id FROM uploads
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)
	`
	result, err := db.Exec(query, keep)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(n), nil
}
