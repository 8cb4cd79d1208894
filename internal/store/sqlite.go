package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lazypower/mempack/internal/pack"
)

// The digest is a filesystem convenience; SQL backends keep only the
// structured documents.
func storedKind(k pack.Kind) bool { return k != pack.KindDigest }

func (db *SQLite) ListFeatures(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT DISTINCT feature_id FROM packs ORDER BY feature_id")
	if err != nil {
		return nil, unavailable("list features", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, unavailable("scan feature", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list features", err)
	}
	return out, nil
}

func (db *SQLite) List(ctx context.Context, featureID string) ([]Record, error) {
	if err := ValidID(featureID); err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT p.uow_id, p.revision, d.kind, d.body
		FROM packs p
		LEFT JOIN pack_documents d ON d.feature_id = p.feature_id AND d.uow_id = p.uow_id
		WHERE p.feature_id = ?
		ORDER BY p.uow_id`, featureID)
	if err != nil {
		return nil, unavailable("list "+featureID, err)
	}
	defer rows.Close()

	recs, err := scanRecords(featureID, rows)
	if err != nil {
		return nil, unavailable("list "+featureID, err)
	}
	return recs, nil
}

func (db *SQLite) Get(ctx context.Context, featureID, uowID string) (*Record, error) {
	if err := validKey(featureID, uowID); err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT p.uow_id, p.revision, d.kind, d.body
		FROM packs p
		LEFT JOIN pack_documents d ON d.feature_id = p.feature_id AND d.uow_id = p.uow_id
		WHERE p.feature_id = ? AND p.uow_id = ?`, featureID, uowID)
	if err != nil {
		return nil, unavailable("get pack", err)
	}
	defer rows.Close()

	recs, err := scanRecords(featureID, rows)
	if err != nil {
		return nil, unavailable("get pack", err)
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return &recs[0], nil
}

func (db *SQLite) Locate(ctx context.Context, uowID string) ([]string, error) {
	if err := ValidID(uowID); err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, "SELECT feature_id FROM packs WHERE uow_id = ? ORDER BY feature_id", uowID)
	if err != nil {
		return nil, unavailable("locate "+uowID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, unavailable("scan feature", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("locate "+uowID, err)
	}
	return out, nil
}

// Put writes every document of rec in one transaction guarded by the
// revision compare-and-swap.
func (db *SQLite) Put(ctx context.Context, rec *Record) error {
	if err := validKey(rec.FeatureID, rec.UoWID); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin put", err)
	}
	defer tx.Rollback()

	next := uuid.NewString()
	now := time.Now().UnixMilli()

	var res sql.Result
	if rec.Revision == "" {
		res, err = tx.ExecContext(ctx, `
			INSERT INTO packs (feature_id, uow_id, revision, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (feature_id, uow_id) DO NOTHING`,
			rec.FeatureID, rec.UoWID, next, now)
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE packs SET revision = ?, updated_at = ?
			WHERE feature_id = ? AND uow_id = ? AND revision = ?`,
			next, now, rec.FeatureID, rec.UoWID, rec.Revision)
	}
	if err != nil {
		return unavailable("put pack", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("put pack", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s expected revision %q", ErrConflict, rec.FeatureID, rec.UoWID, rec.Revision)
	}

	for kind, body := range rec.Docs {
		if !storedKind(kind) {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pack_documents (feature_id, uow_id, kind, body) VALUES (?, ?, ?, ?)
			ON CONFLICT (feature_id, uow_id, kind) DO UPDATE SET body = excluded.body`,
			rec.FeatureID, rec.UoWID, string(kind), body); err != nil {
			return unavailable("put "+string(kind), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit put", err)
	}
	rec.Revision = next
	return nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// scanRecords groups (uow, revision, kind, body) rows ordered by uow into
// records. kind and body are NULL for a pack with no documents.
func scanRecords(featureID string, rows rowScanner) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var (
			uowID, revision string
			kind            sql.NullString
			body            []byte
		)
		if err := rows.Scan(&uowID, &revision, &kind, &body); err != nil {
			return nil, err
		}
		if len(out) == 0 || out[len(out)-1].UoWID != uowID {
			out = append(out, Record{
				FeatureID: featureID,
				UoWID:     uowID,
				Revision:  revision,
				Docs:      make(map[pack.Kind][]byte),
			})
		}
		if kind.Valid {
			out[len(out)-1].Docs[pack.Kind(kind.String)] = body
		}
	}
	return out, rows.Err()
}
