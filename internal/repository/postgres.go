// Package repository implements the catalog document store on PostgreSQL,
// DynamoDB and process memory.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dharsanguruparan/WallDrop/internal/catalog"
	"github.com/dharsanguruparan/WallDrop/internal/model"
)

// DB is the subset of *pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Postgres wraps all SQL used by the API, the CLI and the worker.
type Postgres struct {
	db DB
}

// NewPostgres constructs a repository.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

const wallpaperColumns = `id, title, description, category, tags, price, image_url, dimensions, created_at, updated_at`

const upsertWallpaper = `
	INSERT INTO wallpapers (` + wallpaperColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	ON CONFLICT (id) DO UPDATE SET
		title = EXCLUDED.title,
		description = EXCLUDED.description,
		category = EXCLUDED.category,
		tags = EXCLUDED.tags,
		price = EXCLUDED.price,
		image_url = EXCLUDED.image_url,
		dimensions = EXCLUDED.dimensions,
		updated_at = EXCLUDED.updated_at`

func docArgs(d model.CatalogDocument) []any {
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	return []any{d.ID, d.Title, d.Description, d.Category, tags, d.Price, d.ImageURL, d.Dimensions, d.CreatedAt, d.UpdatedAt}
}

// NewID implements catalog.Store.
func (r *Postgres) NewID() string {
	return uuid.NewString()
}

// CommitBatch inserts docs inside one transaction.
func (r *Postgres) CommitBatch(ctx context.Context, docs []model.CatalogDocument) (err error) {
	if len(docs) == 0 {
		return nil
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	batch := &pgx.Batch{}
	for _, d := range docs {
		batch.Queue(upsertWallpaper, docArgs(d)...)
	}
	br := tx.SendBatch(ctx, batch)
	for i := range docs {
		if _, err = br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("insert wallpaper %s: %w", docs[i].ID, err)
		}
	}
	if err = br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Get returns a wallpaper by id.
func (r *Postgres) Get(ctx context.Context, id string) (model.CatalogDocument, error) {
	row := r.db.QueryRow(ctx, `SELECT `+wallpaperColumns+` FROM wallpapers WHERE id=$1`, id)
	doc, err := scanDoc(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CatalogDocument{}, catalog.ErrNotFound
		}
		return model.CatalogDocument{}, fmt.Errorf("select wallpaper: %w", err)
	}
	return doc, nil
}

// Put creates or replaces a wallpaper.
func (r *Postgres) Put(ctx context.Context, doc model.CatalogDocument) error {
	if _, err := r.db.Exec(ctx, upsertWallpaper, docArgs(doc)...); err != nil {
		return fmt.Errorf("upsert wallpaper: %w", err)
	}
	return nil
}

// Delete removes a wallpaper.
func (r *Postgres) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM wallpapers WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete wallpaper: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// DeleteAll removes every wallpaper.
func (r *Postgres) DeleteAll(ctx context.Context) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM wallpapers`)
	if err != nil {
		return 0, fmt.Errorf("delete wallpapers: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

const listFilter = `
	WHERE ($1 = '' OR title ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%' OR lower($1) = ANY(SELECT lower(t) FROM unnest(tags) t))
	  AND ($2 = '' OR category = $2)`

// List returns one page ordered by creation time, newest first.
func (r *Postgres) List(ctx context.Context, q catalog.Query) (catalog.Page, error) {
	q = q.Normalize()
	page := catalog.Page{Items: []model.CatalogDocument{}, Page: q.Page, PageSize: q.PageSize}
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM wallpapers`+listFilter, q.Search, q.Category).Scan(&page.Total); err != nil {
		return page, fmt.Errorf("count wallpapers: %w", err)
	}
	rows, err := r.db.Query(ctx, `SELECT `+wallpaperColumns+` FROM wallpapers`+listFilter+`
		ORDER BY created_at DESC, id LIMIT $3 OFFSET $4`, q.Search, q.Category, q.PageSize, q.Offset())
	if err != nil {
		return page, fmt.Errorf("list wallpapers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		doc, err := scanDoc(rows)
		if err != nil {
			return page, fmt.Errorf("scan wallpaper: %w", err)
		}
		page.Items = append(page.Items, doc)
	}
	if err := rows.Err(); err != nil {
		return page, fmt.Errorf("iterate wallpapers: %w", err)
	}
	page.HasMore = q.Offset()+len(page.Items) < page.Total
	return page, nil
}

// ImageURLs implements catalog.Store.
func (r *Postgres) ImageURLs(ctx context.Context) (map[string]bool, error) {
	rows, err := r.db.Query(ctx, `SELECT image_url FROM wallpapers`)
	if err != nil {
		return nil, fmt.Errorf("list image urls: %w", err)
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan image url: %w", err)
		}
		out[u] = true
	}
	return out, rows.Err()
}

// ListCategories implements categories.Store.
func (r *Postgres) ListCategories(ctx context.Context) ([]model.CategoryOption, error) {
	rows, err := r.db.Query(ctx, `SELECT label, value FROM wallpaper_categories ORDER BY label`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()
	var out []model.CategoryOption
	for rows.Next() {
		var c model.CategoryOption
		if err := rows.Scan(&c.Label, &c.Value); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddCategory inserts a category; an existing value is left untouched.
func (r *Postgres) AddCategory(ctx context.Context, opt model.CategoryOption) (bool, error) {
	tag, err := r.db.Exec(ctx, `INSERT INTO wallpaper_categories (value, label) VALUES ($1, $2) ON CONFLICT (value) DO NOTHING`, opt.Value, opt.Label)
	if err != nil {
		return false, fmt.Errorf("insert category: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanDoc(row pgx.Row) (model.CatalogDocument, error) {
	var d model.CatalogDocument
	err := row.Scan(&d.ID, &d.Title, &d.Description, &d.Category, &d.Tags, &d.Price, &d.ImageURL, &d.Dimensions, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}
