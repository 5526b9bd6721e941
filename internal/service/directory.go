package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/restaurant-table-reservation/internal/apperror"
	"github.com/iliyamo/restaurant-table-reservation/internal/clock"
	"github.com/iliyamo/restaurant-table-reservation/internal/model"
)

const (
	defaultTableCapacity = 6
	defaultTablePosition = 0.5

	defaultListLimit = 20
	maxListLimit     = 100
)

// TableInput describes one table of a floor plan.  Capacity defaults to 6
// and the position to the centre of the zone.
type TableInput struct {
	TableID        string   `json:"table_id" validate:"required,max=64"`
	Capacity       *int     `json:"capacity" validate:"omitempty,gt=0"`
	IsJoinable     bool     `json:"is_joinable"`
	X              *float64 `json:"x" validate:"omitempty,gte=0,lte=1"`
	Y              *float64 `json:"y" validate:"omitempty,gte=0,lte=1"`
	HasPowerOutlet bool     `json:"has_power_outlet"`
	WindowView     bool     `json:"window_view"`
}

type ZoneInput struct {
	Name   string       `json:"name" validate:"required,max=128"`
	Tables []TableInput `json:"tables" validate:"dive"`
}

// CreateRestaurantInput is accepted from owners and admins.  OwnerID is
// only honoured for admins creating a restaurant on behalf of an owner.
type CreateRestaurantInput struct {
	OwnerID string      `json:"owner_id" validate:"omitempty,max=64"`
	Name    string      `json:"name" validate:"required,max=255"`
	Address string      `json:"address" validate:"required,max=512"`
	Zones   []ZoneInput `json:"zones" validate:"dive"`
}

type FloorPlanInput struct {
	Zones []ZoneInput `json:"zones" validate:"required,dive"`
}

// Directory answers restaurant and floor plan lookups.
type Directory struct {
	store RestaurantStore
	cache RestaurantCache
	clock clock.Clock
	log   *zap.Logger
}

// NewDirectory returns a Directory.  cache may be nil.
func NewDirectory(store RestaurantStore, cache RestaurantCache, clk clock.Clock, log *zap.Logger) *Directory {
	if log == nil {
		log = zap.NewNop()
	}
	return &Directory{store: store, cache: cache, clock: clk, log: log}
}

// FindByID returns the restaurant with its floor plan.
func (d *Directory) FindByID(ctx context.Context, id string) (*model.Restaurant, error) {
	if id == "" {
		return nil, apperror.New(apperror.KindNotFound, "restaurant not found")
	}
	if d.cache != nil {
		if r, ok := d.cache.Get(ctx, id); ok {
			return r, nil
		}
	}
	r, err := d.store.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "restaurant not found")
	}
	if d.cache != nil {
		d.cache.Set(ctx, r)
	}
	return r, nil
}

// TableCapacity returns the capacity of the first table matching tableID
// across the restaurant's zones.
func (d *Directory) TableCapacity(r *model.Restaurant, tableID string) (int, error) {
	capacity, ok := r.TableCapacity(tableID)
	if !ok {
		return 0, apperror.Newf(apperror.KindNotFound, "table %s not found", tableID)
	}
	return capacity, nil
}

func (d *Directory) TableExists(r *model.Restaurant, tableID string) bool {
	_, ok := r.FindTable(tableID)
	return ok
}

// Create registers a new restaurant owned by the caller, or by OwnerID when
// an admin creates it.
func (d *Directory) Create(ctx context.Context, actor model.Actor, in CreateRestaurantInput) (*model.Restaurant, error) {
	if actor.Role != model.RoleOwner && !actor.IsAdmin() {
		return nil, apperror.New(apperror.KindForbidden, "only owners can create restaurants")
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}
	zones, err := buildZones(in.Zones)
	if err != nil {
		return nil, err
	}
	owner := actor.UserID
	if actor.IsAdmin() && in.OwnerID != "" {
		owner = in.OwnerID
	}
	now := d.clock.Now()
	r := model.Restaurant{
		ID:        uuid.NewString(),
		OwnerID:   owner,
		Name:      in.Name,
		Address:   in.Address,
		Zones:     zones,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.store.Insert(ctx, r); err != nil {
		return nil, storeErr(err, "restaurant not found")
	}
	d.log.Info("restaurant created",
		zap.String("restaurant_id", r.ID),
		zap.String("owner_id", r.OwnerID),
		zap.Int("zones", len(r.Zones)),
	)
	return &r, nil
}

// List pages through all restaurants without their floor plans.
func (d *Directory) List(ctx context.Context, limit, offset int) ([]model.Restaurant, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	out, err := d.store.List(ctx, limit, offset)
	if err != nil {
		return nil, storeErr(err, "restaurant not found")
	}
	return out, nil
}

// ListMine returns the restaurants owned by the caller.
func (d *Directory) ListMine(ctx context.Context, actor model.Actor) ([]model.Restaurant, error) {
	out, err := d.store.ListByOwner(ctx, actor.UserID)
	if err != nil {
		return nil, storeErr(err, "restaurant not found")
	}
	return out, nil
}

// UpdateFloorPlan replaces every zone and table of the restaurant.  Only
// the owner may edit the floor plan.
func (d *Directory) UpdateFloorPlan(ctx context.Context, actor model.Actor, id string, in FloorPlanInput) (*model.Restaurant, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	zones, err := buildZones(in.Zones)
	if err != nil {
		return nil, err
	}
	r, err := d.store.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "restaurant not found")
	}
	if !r.IsOwnedBy(actor.UserID) {
		return nil, apperror.New(apperror.KindForbidden, "only the restaurant owner can edit the floor plan")
	}
	now := d.clock.Now()
	if err := d.store.ReplaceFloorPlan(ctx, id, zones, now); err != nil {
		return nil, storeErr(err, "restaurant not found")
	}
	if d.cache != nil {
		d.cache.Invalidate(ctx, id)
	}
	r.Zones = zones
	r.UpdatedAt = now
	return r, nil
}

// buildZones applies defaults and rejects duplicate table ids.
func buildZones(in []ZoneInput) ([]model.Zone, error) {
	seen := make(map[string]struct{})
	zones := make([]model.Zone, 0, len(in))
	for _, zi := range in {
		z := model.Zone{Name: zi.Name, Tables: make([]model.Table, 0, len(zi.Tables))}
		for _, ti := range zi.Tables {
			if _, dup := seen[ti.TableID]; dup {
				return nil, apperror.Newf(apperror.KindInvalidRequest, "duplicate table_id %s", ti.TableID)
			}
			seen[ti.TableID] = struct{}{}
			t := model.Table{
				TableID:        ti.TableID,
				Capacity:       defaultTableCapacity,
				IsJoinable:     ti.IsJoinable,
				X:              defaultTablePosition,
				Y:              defaultTablePosition,
				HasPowerOutlet: ti.HasPowerOutlet,
				WindowView:     ti.WindowView,
			}
			if ti.Capacity != nil {
				t.Capacity = *ti.Capacity
			}
			if ti.X != nil {
				t.X = *ti.X
			}
			if ti.Y != nil {
				t.Y = *ti.Y
			}
			z.Tables = append(z.Tables, t)
		}
		zones = append(zones, z)
	}
	return zones, nil
}
