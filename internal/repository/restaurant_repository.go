package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/restaurant-table-reservation/internal/database"
	"github.com/iliyamo/restaurant-table-reservation/internal/model"
)

// RestaurantRepo persists restaurants and their floor plans.  Zones and
// tables are stored in restaurant_zones and restaurant_tables, keyed by
// their position so that the order chosen by the owner survives a round
// trip.  Every method joins the transaction carried by ctx, if any.
type RestaurantRepo struct {
	db *sql.DB
}

// NewRestaurantRepo returns a RestaurantRepo bound to the given database.
func NewRestaurantRepo(db *sql.DB) *RestaurantRepo { return &RestaurantRepo{db: db} }

// Insert writes the restaurant row and its floor plan in one transaction.
// A duplicate id is reported as ErrConflict.
func (r *RestaurantRepo) Insert(ctx context.Context, rest model.Restaurant) error {
	return database.WithTx(ctx, r.db, func(ctx context.Context) error {
		const q = `INSERT INTO restaurants (id, owner_id, name, address, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`
		_, err := database.Conn(ctx, r.db).ExecContext(ctx, q,
			rest.ID, rest.OwnerID, rest.Name, rest.Address, rest.CreatedAt.UTC(), rest.UpdatedAt.UTC())
		if err != nil {
			if database.IsDuplicateKey(err) {
				return ErrConflict
			}
			return err
		}
		return r.insertFloorPlan(ctx, rest.ID, rest.Zones)
	})
}

// GetByID loads the restaurant and its full floor plan.  It returns
// ErrNotFound when no row matches.
func (r *RestaurantRepo) GetByID(ctx context.Context, id string) (*model.Restaurant, error) {
	q := database.Conn(ctx, r.db)
	const sel = `SELECT id, owner_id, name, address, created_at, updated_at FROM restaurants WHERE id = ?`
	var rest model.Restaurant
	err := q.QueryRowContext(ctx, sel, id).Scan(
		&rest.ID, &rest.OwnerID, &rest.Name, &rest.Address, &rest.CreatedAt, &rest.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	zones, err := r.loadFloorPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	rest.Zones = zones
	return &rest, nil
}

// List returns a page of restaurants ordered by name.  Zones are not
// loaded.
func (r *RestaurantRepo) List(ctx context.Context, limit, offset int) ([]model.Restaurant, error) {
	const q = `SELECT id, owner_id, name, address, created_at, updated_at
			   FROM restaurants ORDER BY name, id LIMIT ? OFFSET ?`
	return r.listRestaurants(ctx, q, limit, offset)
}

// ListByOwner returns every restaurant owned by ownerID ordered by name.
// Zones are not loaded.
func (r *RestaurantRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.Restaurant, error) {
	const q = `SELECT id, owner_id, name, address, created_at, updated_at
			   FROM restaurants WHERE owner_id = ? ORDER BY name, id`
	return r.listRestaurants(ctx, q, ownerID)
}

func (r *RestaurantRepo) listRestaurants(ctx context.Context, query string, args ...any) ([]model.Restaurant, error) {
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Restaurant{}
	for rows.Next() {
		var rest model.Restaurant
		if err := rows.Scan(&rest.ID, &rest.OwnerID, &rest.Name, &rest.Address, &rest.CreatedAt, &rest.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rest)
	}
	return out, rows.Err()
}

// ReplaceFloorPlan deletes every zone and table of the restaurant and
// inserts zones in their place.  It returns ErrNotFound when the restaurant
// does not exist.
func (r *RestaurantRepo) ReplaceFloorPlan(ctx context.Context, id string, zones []model.Zone, updatedAt time.Time) error {
	return database.WithTx(ctx, r.db, func(ctx context.Context) error {
		q := database.Conn(ctx, r.db)
		res, err := q.ExecContext(ctx, `UPDATE restaurants SET updated_at = ? WHERE id = ?`, updatedAt.UTC(), id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrNotFound
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM restaurant_tables WHERE restaurant_id = ?`, id); err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM restaurant_zones WHERE restaurant_id = ?`, id); err != nil {
			return err
		}
		return r.insertFloorPlan(ctx, id, zones)
	})
}

// insertFloorPlan writes all zones with one multi-row INSERT and all
// tables with another.
func (r *RestaurantRepo) insertFloorPlan(ctx context.Context, restaurantID string, zones []model.Zone) error {
	if len(zones) == 0 {
		return nil
	}
	q := database.Conn(ctx, r.db)

	zoneQuery := `INSERT INTO restaurant_zones (restaurant_id, position, name) VALUES `
	zoneArgs := make([]any, 0, len(zones)*3)
	tableQuery := `INSERT INTO restaurant_tables (restaurant_id, table_id, zone_position, position, capacity, is_joinable, pos_x, pos_y, has_power_outlet, window_view) VALUES `
	var tableArgs []any
	for zi, z := range zones {
		if zi > 0 {
			zoneQuery += ","
		}
		zoneQuery += "(?, ?, ?)"
		zoneArgs = append(zoneArgs, restaurantID, zi, z.Name)
		for ti, t := range z.Tables {
			if len(tableArgs) > 0 {
				tableQuery += ","
			}
			tableQuery += "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
			tableArgs = append(tableArgs, restaurantID, t.TableID, zi, ti, t.Capacity, t.IsJoinable, t.X, t.Y, t.HasPowerOutlet, t.WindowView)
		}
	}
	if _, err := q.ExecContext(ctx, zoneQuery, zoneArgs...); err != nil {
		return err
	}
	if len(tableArgs) == 0 {
		return nil
	}
	if _, err := q.ExecContext(ctx, tableQuery, tableArgs...); err != nil {
		if database.IsDuplicateKey(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// loadFloorPlan rebuilds the ordered zones of a restaurant.  Zones without
// tables are kept.
func (r *RestaurantRepo) loadFloorPlan(ctx context.Context, restaurantID string) ([]model.Zone, error) {
	q := database.Conn(ctx, r.db)
	zoneRows, err := q.QueryContext(ctx,
		`SELECT position, name FROM restaurant_zones WHERE restaurant_id = ? ORDER BY position`, restaurantID)
	if err != nil {
		return nil, err
	}
	zones := []model.Zone{}
	index := map[int]int{}
	for zoneRows.Next() {
		var pos int
		var z model.Zone
		if err := zoneRows.Scan(&pos, &z.Name); err != nil {
			zoneRows.Close()
			return nil, err
		}
		z.Tables = []model.Table{}
		index[pos] = len(zones)
		zones = append(zones, z)
	}
	if err := zoneRows.Close(); err != nil {
		return nil, err
	}

	tableRows, err := q.QueryContext(ctx,
		`SELECT zone_position, table_id, capacity, is_joinable, pos_x, pos_y, has_power_outlet, window_view
		 FROM restaurant_tables WHERE restaurant_id = ? ORDER BY zone_position, position`, restaurantID)
	if err != nil {
		return nil, err
	}
	defer tableRows.Close()
	for tableRows.Next() {
		var zonePos int
		var t model.Table
		if err := tableRows.Scan(&zonePos, &t.TableID, &t.Capacity, &t.IsJoinable, &t.X, &t.Y, &t.HasPowerOutlet, &t.WindowView); err != nil {
			return nil, err
		}
		i, ok := index[zonePos]
		if !ok {
			continue
		}
		zones[i].Tables = append(zones[i].Tables, t)
	}
	return zones, tableRows.Err()
}
