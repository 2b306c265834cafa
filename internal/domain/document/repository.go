package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FACorreiaa/fastener-match/internal/domain/extraction"
	"github.com/FACorreiaa/fastener-match/pkg/db"
)

// Repository persists documents, their line items and product matches.
type Repository interface {
	CreateDocument(ctx context.Context, doc *Document) error
	// FindDocument returns the document row without line items.
	FindDocument(ctx context.Context, id uuid.UUID) (*Document, error)
	// GetDocument returns the document with line items, matches and products.
	GetDocument(ctx context.Context, id uuid.UUID) (*Document, error)
	// ListDocuments returns every document, newest upload first.
	ListDocuments(ctx context.Context) ([]Document, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) error

	ListLineItems(ctx context.Context, documentID uuid.UUID) ([]LineItem, error)
	// ReplaceLineItems swaps the document's line items for items.
	ReplaceLineItems(ctx context.Context, documentID uuid.UUID, items []extraction.Item) ([]LineItem, error)

	// SaveMatches replaces the matches of every listed line item, creating
	// catalog products for descriptions not stored yet.
	SaveMatches(ctx context.Context, items []ItemMatches) ([]MatchedItem, error)
	// SelectMatch marks productID as the selected match of lineItemID.
	SelectMatch(ctx context.Context, lineItemID, productID uuid.UUID) error
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool db.Querier
}

// NewPostgresRepository creates a new PostgreSQL document repository
func NewPostgresRepository(pool db.Querier) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const lineItemColumns = `id, document_id, position, description, quantity`

func (r *PostgresRepository) CreateDocument(ctx context.Context, doc *Document) error {
	query := `INSERT INTO documents (id, filename, upload_date) VALUES ($1, $2, $3)`

	if _, err := r.pool.Exec(ctx, query, doc.ID, doc.Filename, doc.UploadDate); err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	query := `SELECT id, filename, upload_date FROM documents WHERE id = $1`

	var doc Document
	err := r.pool.QueryRow(ctx, query, id).Scan(&doc.ID, &doc.Filename, &doc.UploadDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	doc.Items = []LineItem{}
	return &doc, nil
}

func (r *PostgresRepository) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	doc, err := r.FindDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	items, err := r.loadItems(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if li, ok := items[id]; ok {
		doc.Items = li
	}
	return doc, nil
}

func (r *PostgresRepository) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, filename, upload_date FROM documents ORDER BY upload_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	docs := []Document{}
	ids := []uuid.UUID{}
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.UploadDate); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc.Items = []LineItem{}
		docs = append(docs, doc)
		ids = append(ids, doc.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}

	if len(ids) == 0 {
		return docs, nil
	}

	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		if li, ok := items[docs[i].ID]; ok {
			docs[i].Items = li
		}
	}
	return docs, nil
}

// DeleteDocument removes the document; line items and matches cascade
func (r *PostgresRepository) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (r *PostgresRepository) ListLineItems(ctx context.Context, documentID uuid.UUID) ([]LineItem, error) {
	query := `SELECT ` + lineItemColumns + ` FROM line_items WHERE document_id = $1 ORDER BY position`

	rows, err := r.pool.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list line items: %w", err)
	}
	return scanLineItems(rows)
}

func (r *PostgresRepository) ReplaceLineItems(ctx context.Context, documentID uuid.UUID, items []extraction.Item) ([]LineItem, error) {
	insert := `
		INSERT INTO line_items (id, document_id, position, description, quantity)
		VALUES ($1, $2, $3, $4, $5)`

	saved := make([]LineItem, 0, len(items))
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM line_items WHERE document_id = $1`, documentID); err != nil {
			return fmt.Errorf("failed to clear line items: %w", err)
		}

		for i, it := range items {
			li := LineItem{
				ID:          uuid.New(),
				DocumentID:  documentID,
				Position:    i,
				Description: it.Description,
				Quantity:    it.Quantity,
				Matches:     []ProductMatch{},
			}
			if li.Quantity <= 0 {
				li.Quantity = 1
			}
			if _, err := tx.Exec(ctx, insert, li.ID, li.DocumentID, li.Position, li.Description, li.Quantity); err != nil {
				return fmt.Errorf("failed to insert line item %d: %w", i, err)
			}
			saved = append(saved, li)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (r *PostgresRepository) SaveMatches(ctx context.Context, items []ItemMatches) ([]MatchedItem, error) {
	upsertProduct := `
		INSERT INTO product_catalog (id, type, material, size, length, coating, thread_type, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (description) DO UPDATE SET description = EXCLUDED.description
		RETURNING id`

	insertMatch := `
		INSERT INTO product_matches (id, line_item_id, product_id, score, is_selected, rank)
		VALUES ($1, $2, $3, $4, FALSE, $5)
		ON CONFLICT (line_item_id, product_id) DO NOTHING`

	matched := make([]MatchedItem, 0, len(items))
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, item := range items {
			if _, err := tx.Exec(ctx, `DELETE FROM product_matches WHERE line_item_id = $1`, item.LineItemID); err != nil {
				return fmt.Errorf("failed to clear matches: %w", err)
			}

			mi := MatchedItem{
				LineItemID:  item.LineItemID,
				Description: item.Description,
				Matches:     make([]MatchedProduct, 0, len(item.Candidates)),
			}
			seen := make(map[uuid.UUID]struct{}, len(item.Candidates))
			for _, c := range item.Candidates {
				e := c.Entry
				var productID uuid.UUID
				err := tx.QueryRow(ctx, upsertProduct,
					uuid.New(),
					e.Type,
					e.Material,
					e.Size,
					e.Length,
					e.Coating,
					e.ThreadType,
					e.Description,
				).Scan(&productID)
				if err != nil {
					return fmt.Errorf("failed to resolve product %q: %w", e.Description, err)
				}

				// duplicate descriptions resolve to one product
				if _, dup := seen[productID]; dup {
					continue
				}
				seen[productID] = struct{}{}

				rank := len(mi.Matches)
				if _, err := tx.Exec(ctx, insertMatch, uuid.New(), item.LineItemID, productID, c.Score, rank); err != nil {
					return fmt.Errorf("failed to insert match: %w", err)
				}

				mi.Matches = append(mi.Matches, MatchedProduct{
					ProductID:   productID,
					Description: e.Description,
					Score:       c.Score,
				})
			}
			matched = append(matched, mi)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matched, nil
}

func (r *PostgresRepository) SelectMatch(ctx context.Context, lineItemID, productID uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM line_items WHERE id = $1)`, lineItemID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to look up line item: %w", err)
		}
		if !exists {
			return ErrLineItemNotFound
		}

		// clear first so the partial unique index never sees two selected rows
		if _, err := tx.Exec(ctx, `UPDATE product_matches SET is_selected = FALSE WHERE line_item_id = $1 AND is_selected`, lineItemID); err != nil {
			return fmt.Errorf("failed to unselect matches: %w", err)
		}

		tag, err := tx.Exec(ctx, `UPDATE product_matches SET is_selected = TRUE WHERE line_item_id = $1 AND product_id = $2`, lineItemID, productID)
		if err != nil {
			return fmt.Errorf("failed to select match: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrMatchNotFound
		}
		return nil
	})
}

// loadItems returns the line items of the given documents, with matches and
// products, grouped by document ID.
func (r *PostgresRepository) loadItems(ctx context.Context, documentIDs []uuid.UUID) (map[uuid.UUID][]LineItem, error) {
	query := `SELECT ` + lineItemColumns + `
		FROM line_items
		WHERE document_id = ANY($1)
		ORDER BY document_id, position`

	rows, err := r.pool.Query(ctx, query, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load line items: %w", err)
	}
	items, err := scanLineItems(rows)
	if err != nil {
		return nil, err
	}

	grouped := make(map[uuid.UUID][]LineItem, len(documentIDs))
	if len(items) == 0 {
		return grouped, nil
	}

	matches, err := r.loadMatches(ctx, documentIDs)
	if err != nil {
		return nil, err
	}

	for _, li := range items {
		if m, ok := matches[li.ID]; ok {
			li.Matches = m
		}
		grouped[li.DocumentID] = append(grouped[li.DocumentID], li)
	}
	return grouped, nil
}

func (r *PostgresRepository) loadMatches(ctx context.Context, documentIDs []uuid.UUID) (map[uuid.UUID][]ProductMatch, error) {
	query := `
		SELECT m.id, m.line_item_id, m.product_id, m.score, m.is_selected, m.rank,
		       p.id, p.seq, p.type, p.material, p.size, p.length, p.coating, p.thread_type, p.description
		FROM product_matches m
		JOIN line_items li ON li.id = m.line_item_id
		JOIN product_catalog p ON p.id = m.product_id
		WHERE li.document_id = ANY($1)
		ORDER BY m.line_item_id, m.rank`

	rows, err := r.pool.Query(ctx, query, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load matches: %w", err)
	}
	defer rows.Close()

	matches := make(map[uuid.UUID][]ProductMatch)
	for rows.Next() {
		var m ProductMatch
		if err := rows.Scan(
			&m.ID,
			&m.LineItemID,
			&m.ProductID,
			&m.Score,
			&m.IsSelected,
			&m.Rank,
			&m.Product.ID,
			&m.Product.Seq,
			&m.Product.Type,
			&m.Product.Material,
			&m.Product.Size,
			&m.Product.Length,
			&m.Product.Coating,
			&m.Product.ThreadType,
			&m.Product.Description,
		); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches[m.LineItemID] = append(matches[m.LineItemID], m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate matches: %w", err)
	}
	return matches, nil
}

func scanLineItems(rows pgx.Rows) ([]LineItem, error) {
	defer rows.Close()

	items := []LineItem{}
	for rows.Next() {
		li := LineItem{Matches: []ProductMatch{}}
		if err := rows.Scan(&li.ID, &li.DocumentID, &li.Position, &li.Description, &li.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		items = append(items, li)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate line items: %w", err)
	}
	return items, nil
}
