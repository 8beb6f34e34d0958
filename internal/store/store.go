package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint error.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// ProductByID retrieves a product by ID
func (s *Store) ProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// VariantByID retrieves a variant scoped to its parent product.
func (s *Store) VariantByID(ctx context.Context, productID, variantID int64) (*models.Variant, error) {
	var variant models.Variant
	err := s.db.GetContext(ctx, &variant,
		"SELECT * FROM variants WHERE id = $1 AND product_id = $2", variantID, productID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("variant %d of product %d: %w", variantID, productID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

// DecrementProductStock atomically decrements product stock, clamped at zero.
// Never read-modify-write in application code: concurrent checkouts share
// these counters.
func (s *Store) DecrementProductStock(ctx context.Context, productID int64, quantity int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET stock = GREATEST(stock - $1, 0) WHERE id = $2",
		quantity, productID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("product %d: %w", productID, ErrNotFound)
	}
	return err
}

// DecrementVariantStock atomically decrements variant stock, clamped at zero.
func (s *Store) DecrementVariantStock(ctx context.Context, variantID int64, quantity int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE variants SET stock = GREATEST(stock - $1, 0) WHERE id = $2",
		quantity, variantID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("variant %d: %w", variantID, ErrNotFound)
	}
	return err
}

// RestoreProductStock returns cancelled quantity to a product's stock.
func (s *Store) RestoreProductStock(ctx context.Context, productID int64, quantity int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET stock = stock + $1 WHERE id = $2",
		quantity, productID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("product %d: %w", productID, ErrNotFound)
	}
	return err
}

// RestoreVariantStock returns cancelled quantity to a variant's stock.
func (s *Store) RestoreVariantStock(ctx context.Context, variantID int64, quantity int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE variants SET stock = stock + $1 WHERE id = $2",
		quantity, variantID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("variant %d: %w", variantID, ErrNotFound)
	}
	return err
}

// DeleteCartItems removes a user's server-side cart line items. The cart
// container itself is left alone.
func (s *Store) DeleteCartItems(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM cart_items WHERE user_id = $1", userID)
	return err
}

// Divisions retrieves all divisions
func (s *Store) Divisions(ctx context.Context) ([]models.Division, error) {
	var divisions []models.Division
	err := s.db.SelectContext(ctx, &divisions, "SELECT * FROM divisions ORDER BY name")
	return divisions, err
}

// DistrictsByDivision retrieves the districts of a division
func (s *Store) DistrictsByDivision(ctx context.Context, divisionID int64) ([]models.District, error) {
	var districts []models.District
	err := s.db.SelectContext(ctx, &districts,
		"SELECT * FROM districts WHERE division_id = $1 ORDER BY name", divisionID)
	return districts, err
}

// UpazilasByDistrict retrieves the upazilas of a district
func (s *Store) UpazilasByDistrict(ctx context.Context, districtID int64) ([]models.Upazila, error) {
	var upazilas []models.Upazila
	err := s.db.SelectContext(ctx, &upazilas,
		"SELECT * FROM upazilas WHERE district_id = $1 ORDER BY name", districtID)
	return upazilas, err
}

// DivisionName retrieves a division's display name
func (s *Store) DivisionName(ctx context.Context, id int64) (string, error) {
	return s.lookupName(ctx, "SELECT name FROM divisions WHERE id = $1", id)
}

// DistrictName retrieves a district's display name
func (s *Store) DistrictName(ctx context.Context, id int64) (string, error) {
	return s.lookupName(ctx, "SELECT name FROM districts WHERE id = $1", id)
}

// UpazilaName retrieves an upazila's display name
func (s *Store) UpazilaName(ctx context.Context, id int64) (string, error) {
	return s.lookupName(ctx, "SELECT name FROM upazilas WHERE id = $1", id)
}

func (s *Store) lookupName(ctx context.Context, query string, id int64) (string, error) {
	var name string
	err := s.db.GetContext(ctx, &name, query, id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return name, err
}

// ZoneByUpazila retrieves the delivery zone mapped to an upazila.
func (s *Store) ZoneByUpazila(ctx context.Context, upazilaID int64) (*models.DeliveryZone, error) {
	var zone models.DeliveryZone
	err := s.db.GetContext(ctx, &zone, `
		SELECT z.* FROM delivery_zones z
		JOIN upazilas u ON u.zone_id = z.id
		WHERE u.id = $1`, upazilaID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("delivery zone for upazila %d: %w", upazilaID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &zone, nil
}
