package service

import (
	"testing"
	"time"

	"github.com/iliyamo/restaurant-table-reservation/internal/clock"
	"github.com/iliyamo/restaurant-table-reservation/internal/model"
)

var (
	testNow   = time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)
	customer  = model.Actor{UserID: "cust-1", Role: model.RoleCustomer}
	customer2 = model.Actor{UserID: "cust-2", Role: model.RoleCustomer}
	owner     = model.Actor{UserID: "owner-1", Role: model.RoleOwner}
	stranger  = model.Actor{UserID: "owner-2", Role: model.RoleOwner}
	admin     = model.Actor{UserID: "admin-1", Role: model.RoleAdmin}
)

func testRestaurant() model.Restaurant {
	return model.Restaurant{
		ID:      "rest-1",
		OwnerID: owner.UserID,
		Name:    "Bistro",
		Address: "1 Main St",
		Zones: []model.Zone{
			{Name: "main", Tables: []model.Table{
				{TableID: "T1", Capacity: 2},
				{TableID: "T5", Capacity: 4},
				{TableID: "T6", Capacity: 6},
			}},
			{Name: "patio", Tables: []model.Table{
				{TableID: "P1", Capacity: 8},
			}},
		},
	}
}

type harness struct {
	clock        *clock.Manual
	restaurants  *fakeRestaurantStore
	cache        *fakeCache
	reservations *fakeReservationStore
	locks        *fakeLockStore
	notifier     *fakeNotifier

	dir     *Directory
	lockMgr *LockManager
	ledger  *Ledger
	booking *BookingService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:        clock.NewManual(testNow),
		restaurants:  newFakeRestaurantStore(testRestaurant()),
		cache:        newFakeCache(),
		reservations: newFakeReservationStore(),
		locks:        newFakeLockStore(),
		notifier:     &fakeNotifier{},
	}
	h.dir = NewDirectory(h.restaurants, h.cache, h.clock, nil)
	h.lockMgr = NewLockManager(h.dir, h.locks, h.notifier, h.clock, nil)
	h.ledger = NewLedger(h.reservations, h.clock, nil)
	h.booking = NewBookingService(h.dir, h.lockMgr, h.ledger, h.notifier, h.clock, nil)
	return h
}

func at(hour, minute int) time.Time {
	return time.Date(2024, 6, 1, hour, minute, 0, 0, time.UTC)
}

func bookingInput(tableID string, start, end time.Time, party int) BookingInput {
	return BookingInput{
		RestaurantID: "rest-1",
		TableID:      tableID,
		StartTime:    start,
		EndTime:      end,
		PartySize:    party,
	}
}
