package models

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"
)

// Market classifies a listing as a secondary sale or a developer sale.
// The zero value means the market is unknown and is stored as NULL.
type Market string

const (
	MarketAftermarket Market = "Aftermarket"
	MarketPrimary     Market = "Primary market"
)

// Valid reports whether m is one of the known market categories
func (m Market) Valid() bool {
	return m == MarketAftermarket || m == MarketPrimary
}

// Value implements driver.Valuer
func (m Market) Value() (driver.Value, error) {
	if m == "" {
		return nil, nil
	}
	if !m.Valid() {
		return nil, fmt.Errorf("invalid market %q", string(m))
	}
	return string(m), nil
}

// Scan implements sql.Scanner
func (m *Market) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = ""
	case string:
		*m = Market(v)
	case []byte:
		*m = Market(v)
	default:
		return fmt.Errorf("cannot scan %T into Market", src)
	}
	return nil
}

// RawOffer holds the text fragments extracted from a listing's summary and
// detail pages before they are converted into typed values
type RawOffer struct {
	Name             string `json:"name"`
	PriceText        string `json:"price_text"`
	DatetimeText     string `json:"datetime_text"`
	LocationText     string `json:"location_text"`
	AreaText         string `json:"area_text"`
	RoomsCountText   string `json:"rooms_count_text"`
	BuildingTypeText string `json:"building_type_text"`
	MarketText       string `json:"market_text"`
	Website          string `json:"website"`
}

// MergeDetail copies the detail-page fields of d into o
func (o *RawOffer) MergeDetail(d RawOffer) {
	o.AreaText = d.AreaText
	o.RoomsCountText = d.RoomsCountText
	o.BuildingTypeText = d.BuildingTypeText
	o.MarketText = d.MarketText
}

// House is a stored listing. (Name, Website) is unique.
type House struct {
	ID             int64           `db:"id" json:"id"`
	Name           string          `db:"name" json:"name"`
	Datetime       time.Time       `db:"datetime" json:"datetime"`
	Area           sql.NullFloat64 `db:"area" json:"area"`
	RoomsCount     sql.NullInt64   `db:"rooms_count" json:"rooms_count"`
	BuildingType   sql.NullString  `db:"building_type" json:"building_type"`
	Price          float64         `db:"price" json:"price"`
	Website        string          `db:"website" json:"website"`
	LocationCity   string          `db:"location_city" json:"location_city"`
	LocationRegion sql.NullString  `db:"location_region" json:"location_region"`
	Market         Market          `db:"market" json:"market"`
}

// Key returns the natural key of the listing
func (h House) Key() NaturalKey {
	return NaturalKey{Name: h.Name, Website: h.Website}
}

// NaturalKey identifies a listing across repeated scrapes
type NaturalKey struct {
	Name    string
	Website string
}

// String is used in logs
func (h House) String() string {
	rooms := "?"
	if h.RoomsCount.Valid {
		rooms = fmt.Sprintf("%d", h.RoomsCount.Int64)
	}
	return fmt.Sprintf("%d: %q (%s pokoje) - %.2f zł", h.ID, h.Name, rooms, h.Price)
}

// HouseDetail is the JSON shape served to the dashboard
type HouseDetail struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	Datetime       string   `json:"datetime"`
	Area           *float64 `json:"area,omitempty"`
	PricePerMeter  *float64 `json:"price_per_meter,omitempty"`
	RoomsCount     *int64   `json:"rooms_count,omitempty"`
	BuildingType   string   `json:"building_type,omitempty"`
	Price          float64  `json:"price"`
	Website        string   `json:"website"`
	LocationCity   string   `json:"location_city"`
	LocationRegion string   `json:"location_region,omitempty"`
	Market         string   `json:"market,omitempty"`
}

// Detail converts a stored house into its JSON form
func (h House) Detail() HouseDetail {
	d := HouseDetail{
		ID:             h.ID,
		Name:           h.Name,
		Datetime:       h.Datetime.Format(time.RFC3339),
		BuildingType:   h.BuildingType.String,
		Price:          h.Price,
		Website:        h.Website,
		LocationCity:   h.LocationCity,
		LocationRegion: h.LocationRegion.String,
		Market:         string(h.Market),
	}
	if h.Area.Valid {
		area := h.Area.Float64
		d.Area = &area
		if area > 0 {
			ppm := h.Price / area
			d.PricePerMeter = &ppm
		}
	}
	if h.RoomsCount.Valid {
		rooms := h.RoomsCount.Int64
		d.RoomsCount = &rooms
	}
	return d
}

// FilterOptions describes the value ranges available for dashboard filters
type FilterOptions struct {
	MinDate  *time.Time `json:"min_date,omitempty"`
	MaxDate  *time.Time `json:"max_date,omitempty"`
	MinPrice *float64   `json:"min_price,omitempty"`
	MaxPrice *float64   `json:"max_price,omitempty"`
	MinArea  *float64   `json:"min_area,omitempty"`
	MaxArea  *float64   `json:"max_area,omitempty"`
	Cities   []string   `json:"cities"`
}
