// Package houses reconciles freshly scraped houses with the stored ones.
package houses

import (
	"context"
	"fmt"
	"log"
	"strings"

	"house-prices/internal/models"
)

// Store is the storage the reconciler reads from and writes to
type Store interface {
	FindByNameIn(ctx context.Context, names []string) ([]models.House, error)
	BulkInsert(ctx context.Context, houses []models.House) error
	BulkUpdate(ctx context.Context, houses []models.House) error
}

// Reconciler splits a scraped batch into new and already stored houses and
// writes both back
type Reconciler struct {
	store Store
}

// NewReconciler creates a Reconciler over store
func NewReconciler(store Store) *Reconciler {
	return &Reconciler{store: store}
}

// Reconcile stores batch. Houses whose name is not stored yet (compared
// case-insensitively) are inserted once per (name, website), first one wins.
// Houses whose name exactly matches a stored one update that row in place,
// even when the website differs. It returns the inserted houses as stored.
func (r *Reconciler) Reconcile(ctx context.Context, batch []models.House) ([]models.House, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	existing, err := r.store.FindByNameIn(ctx, names(batch))
	if err != nil {
		return nil, fmt.Errorf("loading existing houses: %w", err)
	}

	creates := Deduplicate(toCreate(batch, existing))
	if err := r.store.BulkInsert(ctx, creates); err != nil {
		return nil, fmt.Errorf("inserting %d houses: %w", len(creates), err)
	}

	updates := toUpdate(batch, existing)
	if err := r.store.BulkUpdate(ctx, updates); err != nil {
		return nil, fmt.Errorf("updating %d houses: %w", len(updates), err)
	}

	log.Printf("Reconciled %d houses: %d created, %d updated, %d skipped",
		len(batch), len(creates), len(updates), len(batch)-len(creates)-len(updates))

	if len(creates) == 0 {
		return nil, nil
	}
	created, err := r.store.FindByNameIn(ctx, names(creates))
	if err != nil {
		return nil, fmt.Errorf("reloading created houses: %w", err)
	}
	return created, nil
}

func names(houses []models.House) []string {
	seen := make(map[string]bool, len(houses))
	var out []string
	for _, h := range houses {
		if !seen[h.Name] {
			seen[h.Name] = true
			out = append(out, h.Name)
		}
	}
	return out
}

// toCreate keeps the houses whose name matches no stored house, ignoring case
func toCreate(batch, existing []models.House) []models.House {
	stored := make(map[string]bool, len(existing))
	for _, h := range existing {
		stored[strings.ToLower(h.Name)] = true
	}

	var out []models.House
	for _, h := range batch {
		if !stored[strings.ToLower(h.Name)] {
			out = append(out, h)
		}
	}
	return out
}

// Deduplicate keeps the first house of every natural key, preserving order
func Deduplicate(houses []models.House) []models.House {
	seen := make(map[models.NaturalKey]bool, len(houses))
	var out []models.House
	for _, h := range houses {
		if seen[h.Key()] {
			continue
		}
		seen[h.Key()] = true
		out = append(out, h)
	}
	return out
}

// toUpdate pairs every house with a stored house of exactly the same name,
// preferring the one with the same website, and overlays the scraped values
// on the stored row
func toUpdate(batch, existing []models.House) []models.House {
	byKey := make(map[models.NaturalKey]models.House, len(existing))
	byName := make(map[string]models.House, len(existing))
	for _, h := range existing {
		byKey[h.Key()] = h
		if _, ok := byName[h.Name]; !ok {
			byName[h.Name] = h
		}
	}

	var out []models.House
	for _, h := range batch {
		stored, ok := byKey[h.Key()]
		if !ok {
			stored, ok = byName[h.Name]
		}
		if ok {
			out = append(out, Overlay(stored, h))
		}
	}
	return out
}

// Overlay returns stored with every value set in incoming copied over.
// Optional fields left NULL in incoming keep their stored value; the ID is
// always the stored one.
func Overlay(stored, incoming models.House) models.House {
	out := stored
	out.Name = incoming.Name
	out.Price = incoming.Price
	if incoming.Website != "" {
		out.Website = incoming.Website
	}
	if !incoming.Datetime.IsZero() {
		out.Datetime = incoming.Datetime
	}
	if incoming.LocationCity != "" {
		out.LocationCity = incoming.LocationCity
	}
	if incoming.LocationRegion.Valid {
		out.LocationRegion = incoming.LocationRegion
	}
	if incoming.Area.Valid {
		out.Area = incoming.Area
	}
	if incoming.RoomsCount.Valid {
		out.RoomsCount = incoming.RoomsCount
	}
	if incoming.BuildingType.Valid {
		out.BuildingType = incoming.BuildingType
	}
	if incoming.Market != "" {
		out.Market = incoming.Market
	}
	return out
}
