package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FACorreiaa/fastener-match/internal/domain/matching"
	"github.com/FACorreiaa/fastener-match/pkg/db"
)

// Repository persists the product catalog.
type Repository interface {
	// InsertProducts adds entries whose description is not stored yet and
	// reports how many rows were inserted.
	InsertProducts(ctx context.Context, entries []matching.CatalogEntry) (int, error)
	// ListProducts returns products in insertion order. limit <= 0 means all.
	ListProducts(ctx context.Context, limit int) ([]Product, error)
	// SearchProducts returns products whose description, type, material,
	// size or length contains query, case-insensitively.
	SearchProducts(ctx context.Context, query string) ([]Product, error)
	CountProducts(ctx context.Context) (int, error)
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool db.Querier
}

// NewPostgresRepository creates a new PostgreSQL catalog repository
func NewPostgresRepository(pool db.Querier) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const productColumns = `id, seq, type, material, size, length, coating, thread_type, description`

// InsertProducts inserts entries in one transaction, skipping blank and
// already stored descriptions.
func (r *PostgresRepository) InsertProducts(ctx context.Context, entries []matching.CatalogEntry) (int, error) {
	query := `
		INSERT INTO product_catalog (id, type, material, size, length, coating, thread_type, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (description) DO NOTHING`

	imported := 0
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, e := range entries {
			if strings.TrimSpace(e.Description) == "" {
				continue
			}
			tag, err := tx.Exec(ctx, query,
				uuid.New(),
				e.Type,
				e.Material,
				e.Size,
				e.Length,
				e.Coating,
				e.ThreadType,
				e.Description,
			)
			if err != nil {
				return fmt.Errorf("failed to insert product %q: %w", e.Description, err)
			}
			imported += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return imported, nil
}

// ListProducts returns products ordered by seq
func (r *PostgresRepository) ListProducts(ctx context.Context, limit int) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM product_catalog ORDER BY seq`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return scanProducts(rows)
}

// SearchProducts runs a substring search over the descriptive columns
func (r *PostgresRepository) SearchProducts(ctx context.Context, query string) ([]Product, error) {
	sqlQuery := `SELECT ` + productColumns + `
		FROM product_catalog
		WHERE description ILIKE $1
		   OR type ILIKE $1
		   OR material ILIKE $1
		   OR size ILIKE $1
		   OR length ILIKE $1
		ORDER BY seq`

	rows, err := r.pool.Query(ctx, sqlQuery, "%"+escapeLike(query)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}
	return scanProducts(rows)
}

// CountProducts returns the catalog size
func (r *PostgresRepository) CountProducts(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM product_catalog`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return n, nil
}

// LoadCatalog implements matching.CatalogSource
func (r *PostgresRepository) LoadCatalog(ctx context.Context) ([]matching.CatalogEntry, error) {
	products, err := r.ListProducts(ctx, 0)
	if err != nil {
		return nil, err
	}
	return entriesOf(products), nil
}

func scanProducts(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(
			&p.ID,
			&p.Seq,
			&p.Type,
			&p.Material,
			&p.Size,
			&p.Length,
			&p.Coating,
			&p.ThreadType,
			&p.Description,
		); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}
	return products, nil
}

func entriesOf(products []Product) []matching.CatalogEntry {
	entries := make([]matching.CatalogEntry, len(products))
	for i, p := range products {
		entries[i] = p.CatalogEntry
	}
	return entries
}

// escapeLike neutralizes LIKE wildcards typed by the user.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
