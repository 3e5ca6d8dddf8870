package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/tmasaiti/zimproperty/internal/domain"
)

const propertyColumns = `p.id, p.seller_id, p.type, p.location, p.address, p.price, p.size, p.description, p.photos::text, p.status, p.created_at, p.expires_at, p.is_verified`

// propertyScanTargets returns scan destinations for propertyColumns plus a
// finish func that copies the raw columns into p.
func propertyScanTargets(p *domain.Property) ([]any, func() error) {
	var (
		propertyType string
		status       string
		photos       string
	)
	targets := []any{
		&p.ID,
		&p.SellerID,
		&propertyType,
		&p.Location,
		&p.Address,
		&p.Price,
		&p.Size,
		&p.Description,
		&photos,
		&status,
		&p.CreatedAt,
		&p.ExpiresAt,
		&p.IsVerified,
	}
	finish := func() error {
		p.Type = domain.PropertyType(propertyType)
		p.Status = domain.PropertyStatus(status)
		p.Photos = []string{}
		if photos != "" {
			if err := json.Unmarshal([]byte(photos), &p.Photos); err != nil {
				return fmt.Errorf("failed to decode photos for property %d: %w", p.ID, err)
			}
		}
		return nil
	}
	return targets, finish
}

func scanProperty(row rowScanner) (*domain.Property, error) {
	var property domain.Property
	targets, finish := propertyScanTargets(&property)
	if err := row.Scan(targets...); err != nil {
		return nil, err
	}
	if err := finish(); err != nil {
		return nil, err
	}
	return &property, nil
}

func collectProperties(rows pgx.Rows) ([]domain.Property, error) {
	defer rows.Close()

	properties := make([]domain.Property, 0)
	for rows.Next() {
		property, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		properties = append(properties, *property)
	}
	return properties, rows.Err()
}

// CreatePropertyAndEnqueueEvent inserts the listing and stages a property.created
// event in the same transaction.
func (r *PostgresRepository) CreatePropertyAndEnqueueEvent(ctx context.Context, property *domain.Property, exchange string) error {
	photos := property.Photos
	if photos == nil {
		photos = []string{}
	}
	blob, err := json.Marshal(photos)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO properties (seller_id, type, location, address, price, size, description, photos, status, created_at, expires_at, is_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10, $11, $12)
		RETURNING id, created_at, expires_at
	`,
		property.SellerID,
		string(property.Type),
		property.Location,
		property.Address,
		property.Price,
		property.Size,
		property.Description,
		string(blob),
		string(property.Status),
		property.CreatedAt,
		property.ExpiresAt,
		property.IsVerified,
	).Scan(&property.ID, &property.CreatedAt, &property.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert property: %w", err)
	}
	property.Photos = photos

	event := domain.PropertyCreatedEvent{
		PropertyID: property.ID,
		SellerID:   property.SellerID,
		Type:       property.Type,
		Location:   property.Location,
		Price:      property.Price.StringFixed(2),
		CreatedAt:  property.CreatedAt,
	}
	if err := enqueueEventTx(ctx, tx, exchange, domain.RoutingPropertyCreated, event); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepository) ListPropertiesBySeller(ctx context.Context, sellerID int64) ([]domain.Property, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+propertyColumns+`
		FROM properties p
		WHERE p.seller_id = $1
		ORDER BY p.created_at DESC, p.id DESC
	`, sellerID)
	if err != nil {
		return nil, err
	}
	return collectProperties(rows)
}

// ListProperties applies only the non-nil filter fields. MinPrice is inclusive
// and MaxPrice exclusive.
func (r *PostgresRepository) ListProperties(ctx context.Context, filter domain.PropertyFilter) ([]domain.Property, error) {
	var (
		conditions []string
		args       []any
	)
	addCondition := func(clause string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}

	if filter.Type != nil {
		addCondition("p.type = $%d", string(*filter.Type))
	}
	if filter.Location != nil {
		addCondition("p.location = $%d", *filter.Location)
	}
	if filter.MinPrice != nil {
		addCondition("p.price >= $%d", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		addCondition("p.price < $%d", *filter.MaxPrice)
	}
	if filter.Status != nil {
		addCondition("p.status = $%d", string(*filter.Status))
	}

	query := `SELECT ` + propertyColumns + ` FROM properties p`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY p.created_at DESC, p.id DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectProperties(rows)
}

// FindPropertyDetail returns the property with its unmasked seller contact.
func (r *PostgresRepository) FindPropertyDetail(ctx context.Context, id int64) (*domain.PropertyDetail, error) {
	var detail domain.PropertyDetail
	targets, finish := propertyScanTargets(&detail.Property)
	targets = append(targets,
		&detail.Seller.ID,
		&detail.Seller.FirstName,
		&detail.Seller.LastName,
		&detail.Seller.Email,
		&detail.Seller.Phone,
		&detail.Seller.WhatsappPreferred,
	)

	err := r.db.QueryRow(ctx, `
		SELECT `+propertyColumns+`, u.id, u.first_name, u.last_name, u.email, u.phone, u.whatsapp_preferred
		FROM properties p
		JOIN users u ON u.id = p.seller_id
		WHERE p.id = $1
	`, id).Scan(targets...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPropertyNotFound
		}
		return nil, err
	}
	if err := finish(); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExpireListings moves active listings past their expiry to expired.
func (r *PostgresRepository) ExpireListings(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE properties
		SET status = 'expired'
		WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
