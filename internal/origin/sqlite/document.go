package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/portfolio/internal/apperror"
	"github.com/sakif/portfolio/internal/model"
	"github.com/sakif/portfolio/internal/origin"
)

var _ origin.Store = (*DB)(nil)

const selectDocument = `SELECT id, metadata, file_path, created_at, updated_at FROM documents`

// Create returns a new, unsaved document.
//
// The id is an xid: 20 URL-safe characters that sort by creation time, so
// new slides land after older ones.
func (db *DB) Create(_ context.Context) (*model.Document, error) {
	doc := model.NewDocument()
	doc.ID = xid.New().String()
	return doc, nil
}

// Get retrieves one document by id.
func (db *DB) Get(ctx context.Context, id string) (*model.Document, error) {
	row := db.conn.QueryRowContext(ctx, selectDocument+` WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("document", id)
		}
		return nil, fmt.Errorf("sqlite: getting document %s: %w", id, err)
	}
	return doc, nil
}

// Find lists documents matching f, oldest first.
//
// The filter becomes a WHERE clause over json_extract. Values are always
// passed as ? parameters; only the fixed clause text is concatenated.
func (db *DB) Find(ctx context.Context, f origin.Filter) ([]*model.Document, int, error) {
	var (
		where []string
		args  []any
	)
	if f.Keep {
		where = append(where, `json_extract(metadata, '$.keep') = '1'`)
	}
	if len(f.MimeTypes) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?,", len(f.MimeTypes)), ",")
		where = append(where, `json_extract(metadata, '$.mime_type') IN (`+marks+`)`)
		for _, m := range f.MimeTypes {
			args = append(args, m)
		}
	}
	if f.TagContains != "" {
		where = append(where, `instr(COALESCE(json_extract(metadata, '$.tags'), ''), ?) > 0`)
		args = append(args, f.TagContains)
	}

	query := selectDocument
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY created_at, id`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: finding documents: %w", err)
	}
	defer rows.Close()

	var docs []*model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning document row: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating documents: %w", err)
	}
	return docs, len(docs), nil
}

// Write upserts a document. The payload file is copied into the data
// directory first, so a failed copy leaves the row untouched.
func (db *DB) Write(ctx context.Context, doc *model.Document, opts origin.WriteOptions) error {
	if doc.ID == "" {
		return apperror.ValidationFailed("id", "document id is required")
	}
	if err := db.importPayload(doc); err != nil {
		return fmt.Errorf("sqlite: storing payload for %s: %w", doc.ID, err)
	}

	meta := doc.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("sqlite: encoding metadata for %s: %w", doc.ID, err)
	}

	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if !opts.PreserveMtime || doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO documents (id, metadata, file_path, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			metadata = excluded.metadata,
			file_path = excluded.file_path,
			updated_at = excluded.updated_at`,
		doc.ID, string(raw), doc.FilePath, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: writing document %s: %w", doc.ID, err)
	}
	return nil
}

// Destroy deletes a document and its payload file.
func (db *DB) Destroy(ctx context.Context, id string) error {
	doc, err := db.Get(ctx, id)
	if err != nil {
		return err
	}

	if _, err := db.conn.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting document %s: %w", id, err)
	}

	if doc.FilePath != "" && db.owns(doc.FilePath) {
		if err := db.fs.Remove(doc.FilePath); err != nil {
			return fmt.Errorf("sqlite: removing payload of %s: %w", id, err)
		}
	}
	return nil
}

// importPayload copies an outside file to <dataDir>/<id><ext>.
func (db *DB) importPayload(doc *model.Document) error {
	if doc.FilePath == "" || db.owns(doc.FilePath) {
		return nil
	}
	src, err := db.fs.Open(doc.FilePath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst := path.Join(filepath.ToSlash(db.dataDir), doc.ID+filepath.Ext(doc.FilePath))
	out, err := db.fs.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	doc.FilePath = dst
	return nil
}

func (db *DB) owns(p string) bool {
	dir := filepath.ToSlash(filepath.Clean(db.dataDir)) + "/"
	return strings.HasPrefix(filepath.ToSlash(filepath.Clean(p)), dir)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*model.Document, error) {
	var (
		doc  model.Document
		meta string
	)
	if err := s.Scan(&doc.ID, &meta, &doc.FilePath, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata of %s: %w", doc.ID, err)
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]string{}
	}
	return &doc, nil
}
