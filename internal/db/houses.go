package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"house-prices/internal/models"
)

const houseColumns = `id, name, datetime, area, rooms_count, building_type, price,
	website, location_city, location_region, market`

// HouseFilter contains the filter parameters used by the dashboard
type HouseFilter struct {
	Cities    []string
	StartDate *time.Time
	EndDate   *time.Time
	PriceFrom *float64
	PriceTo   *float64
	// Area range is exclusive at the bottom and inclusive at the top
	AreaFrom *float64
	AreaTo   *float64
	Market   models.Market
	// Pagination
	Limit  int
	Offset int
}

// GetAll returns every stored house
func (db *DB) GetAll(ctx context.Context) ([]models.House, error) {
	var houses []models.House
	err := db.SelectContext(ctx, &houses, "SELECT "+houseColumns+" FROM houses ORDER BY datetime, id")
	if err != nil {
		return nil, fmt.Errorf("failed to get houses: %w", err)
	}
	return houses, nil
}

// FindByNameIn returns houses whose name is one of names
func (db *DB) FindByNameIn(ctx context.Context, names []string) ([]models.House, error) {
	if len(names) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In("SELECT "+houseColumns+" FROM houses WHERE name IN (?) ORDER BY id", names)
	if err != nil {
		return nil, err
	}

	var houses []models.House
	if err := db.SelectContext(ctx, &houses, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to find houses by name: %w", err)
	}
	return houses, nil
}

// BulkInsert stores new houses. IDs on the given values are ignored.
func (db *DB) BulkInsert(ctx context.Context, houses []models.House) error {
	if len(houses) == 0 {
		return nil
	}

	query := `
		INSERT INTO houses (
			name, datetime, area, rooms_count, building_type, price,
			website, location_city, location_region, market
		) VALUES (
			:name, :datetime, :area, :rooms_count, :building_type, :price,
			:website, :location_city, :location_region, :market
		)
	`
	return db.inTx(ctx, query, houses)
}

// BulkUpdate overwrites every column of the given houses, matched by primary key
func (db *DB) BulkUpdate(ctx context.Context, houses []models.House) error {
	if len(houses) == 0 {
		return nil
	}

	query := `
		UPDATE houses SET
			name = :name,
			datetime = :datetime,
			area = :area,
			rooms_count = :rooms_count,
			building_type = :building_type,
			price = :price,
			website = :website,
			location_city = :location_city,
			location_region = :location_region,
			market = :market
		WHERE id = :id
	`
	return db.inTx(ctx, query, houses)
}

func (db *DB) inTx(ctx context.Context, query string, houses []models.House) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, h := range houses {
		h.Datetime = h.Datetime.UTC()
		if _, err := stmt.ExecContext(ctx, h); err != nil {
			return fmt.Errorf("failed to write house %q (%s): %w", h.Name, h.Website, err)
		}
	}

	return tx.Commit()
}

// DeleteAll removes every stored house
func (db *DB) DeleteAll(ctx context.Context) (int64, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM houses")
	if err != nil {
		return 0, fmt.Errorf("failed to delete houses: %w", err)
	}
	return res.RowsAffected()
}

// RemoveByName deletes the houses with the given name
func (db *DB) RemoveByName(ctx context.Context, name string) (int64, error) {
	res, err := db.ExecContext(ctx, db.Rebind("DELETE FROM houses WHERE name = ?"), name)
	if err != nil {
		return 0, fmt.Errorf("failed to remove house %q: %w", name, err)
	}
	return res.RowsAffected()
}

// Count returns total number of houses
func (db *DB) Count(ctx context.Context) (int, error) {
	var count int
	err := db.GetContext(ctx, &count, "SELECT COUNT(*) FROM houses")
	return count, err
}

// GetHouse returns a single house by ID
func (db *DB) GetHouse(ctx context.Context, id int64) (*models.House, error) {
	var h models.House
	err := db.GetContext(ctx, &h, db.Rebind("SELECT "+houseColumns+" FROM houses WHERE id = ?"), id)
	if err != nil {
		return nil, fmt.Errorf("failed to get house: %w", err)
	}
	return &h, nil
}

// ListHouses returns houses matching the given filters ordered by datetime
func (db *DB) ListHouses(ctx context.Context, f HouseFilter) ([]models.House, error) {
	var (
		where []string
		args  []interface{}
	)

	if len(f.Cities) > 0 {
		placeholders := make([]string, len(f.Cities))
		for i, c := range f.Cities {
			placeholders[i] = "?"
			args = append(args, c)
		}
		where = append(where, fmt.Sprintf("location_city IN (%s)", strings.Join(placeholders, ",")))
	}
	if f.StartDate != nil {
		where = append(where, "datetime >= ?")
		args = append(args, f.StartDate.UTC())
	}
	if f.EndDate != nil {
		where = append(where, "datetime <= ?")
		args = append(args, f.EndDate.UTC())
	}
	if f.PriceFrom != nil {
		where = append(where, "price >= ?")
		args = append(args, *f.PriceFrom)
	}
	if f.PriceTo != nil {
		where = append(where, "price <= ?")
		args = append(args, *f.PriceTo)
	}
	if f.AreaFrom != nil {
		where = append(where, "area > ?")
		args = append(args, *f.AreaFrom)
	}
	if f.AreaTo != nil {
		where = append(where, "area <= ?")
		args = append(args, *f.AreaTo)
	}
	if f.Market != "" {
		where = append(where, "market = ?")
		args = append(args, string(f.Market))
	}

	query := "SELECT " + houseColumns + " FROM houses"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY datetime, id"

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
		if f.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", f.Offset)
		}
	}

	var houses []models.House
	if err := db.SelectContext(ctx, &houses, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list houses: %w", err)
	}
	return houses, nil
}

// GetFilterOptions returns the value ranges available for dashboard filters
func (db *DB) GetFilterOptions(ctx context.Context) (*models.FilterOptions, error) {
	opts := &models.FilterOptions{Cities: []string{}}

	// Plain column selects keep the declared DATETIME type for the driver
	var dates []time.Time
	err := db.SelectContext(ctx, &dates, "SELECT datetime FROM houses ORDER BY datetime ASC LIMIT 1")
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return opts, nil
	}
	opts.MinDate = &dates[0]

	dates = nil
	err = db.SelectContext(ctx, &dates, "SELECT datetime FROM houses ORDER BY datetime DESC LIMIT 1")
	if err != nil {
		return nil, err
	}
	opts.MaxDate = &dates[0]

	var ranges struct {
		MinPrice *float64 `db:"min_price"`
		MaxPrice *float64 `db:"max_price"`
		MinArea  *float64 `db:"min_area"`
		MaxArea  *float64 `db:"max_area"`
	}
	err = db.GetContext(ctx, &ranges, `
		SELECT MIN(price) AS min_price, MAX(price) AS max_price,
			MIN(area) AS min_area, MAX(area) AS max_area
		FROM houses`)
	if err != nil {
		return nil, err
	}
	opts.MinPrice, opts.MaxPrice = ranges.MinPrice, ranges.MaxPrice
	opts.MinArea, opts.MaxArea = ranges.MinArea, ranges.MaxArea

	err = db.SelectContext(ctx, &opts.Cities, "SELECT DISTINCT location_city FROM houses ORDER BY location_city")
	if err != nil {
		return nil, err
	}

	return opts, nil
}
