package model

import "time"

// Restaurant owns its floor plan.  Zones and tables are embedded values with
// no lifecycle of their own; they are replaced as a whole when the owner
// edits the floor plan.
//
// Fields:
//  ID        – opaque identifier (UUID string).
//  OwnerID   – user who owns the restaurant.
//  Name      – display name.
//  Address   – street address.
//  Zones     – ordered floor plan.
//  CreatedAt – creation timestamp.
//  UpdatedAt – last update timestamp.
type Restaurant struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Zones     []Zone    `json:"zones"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Zone is a named group of tables such as "patio" or "main hall".
type Zone struct {
	Name   string  `json:"name"`
	Tables []Table `json:"tables"`
}

// Table is a bookable table inside a zone.  TableID is unique among all
// tables of the owning restaurant.  Position and metadata are only used by
// clients rendering the floor plan.
type Table struct {
	TableID        string  `json:"table_id"`
	Capacity       int     `json:"capacity"`
	IsJoinable     bool    `json:"is_joinable"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	HasPowerOutlet bool    `json:"has_power_outlet"`
	WindowView     bool    `json:"window_view"`
}

// FindTable scans the zones in order and returns the first table whose
// TableID matches.
func (r *Restaurant) FindTable(tableID string) (Table, bool) {
	for _, z := range r.Zones {
		for _, t := range z.Tables {
			if t.TableID == tableID {
				return t, true
			}
		}
	}
	return Table{}, false
}

// TableCapacity returns the capacity of the table with the given id.
func (r *Restaurant) TableCapacity(tableID string) (int, bool) {
	t, ok := r.FindTable(tableID)
	if !ok {
		return 0, false
	}
	return t.Capacity, true
}

// IsOwnedBy reports whether userID owns the restaurant.
func (r *Restaurant) IsOwnedBy(userID string) bool {
	return userID != "" && r.OwnerID == userID
}
