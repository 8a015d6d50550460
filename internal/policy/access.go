// Package policy holds every role and ownership rule of the ledger: which
// role may touch which collection, who owns a sale or shift, how a daily
// submission collapses onto an existing row, and when a delete is blocked.
package policy

import (
	"bottega/internal/core"
	"bottega/internal/store"
)

type Action string

const (
	Read  Action = "read"
	Write Action = "write"
)

// Resource names a guarded surface. Most map to a store collection.
type Resource string

const (
	Dashboard  Resource = "dashboard"
	Sales      Resource = Resource(store.Sales)
	Shifts     Resource = Resource(store.Shifts)
	Expenses   Resource = Resource(store.Expenses)
	Categories Resource = Resource(store.Categories)
	Suppliers  Resource = Resource(store.Suppliers)
	Users      Resource = Resource(store.Users)
	Targets    Resource = Resource(store.Targets)
)

var anyone []core.Role

var rules = map[Resource]map[Action][]core.Role{
	Dashboard:  {Read: anyone},
	Sales:      {Read: anyone, Write: anyone},
	Shifts:     {Read: anyone, Write: anyone},
	Expenses:   {Read: {core.RoleAdmin, core.RoleShiftManager}, Write: {core.RoleAdmin}},
	Categories: {Read: anyone, Write: {core.RoleAdmin}},
	Suppliers:  {Read: anyone, Write: {core.RoleAdmin}},
	Users:      {Read: {core.RoleAdmin}, Write: {core.RoleAdmin}},
	Targets:    {Read: anyone, Write: {core.RoleAdmin}},
}

// Allow checks the role table. Row ownership is checked separately.
func Allow(u core.User, r Resource, a Action) error {
	if u.ID == 0 {
		return core.Unauthenticated("authentication required")
	}
	byAction, ok := rules[r]
	if !ok {
		return core.Forbidden("unknown resource %s", r)
	}
	roles, ok := byAction[a]
	if !ok {
		return core.Forbidden("%s does not support %s", r, a)
	}
	if len(roles) == 0 || u.Role.In(roles...) {
		return nil
	}
	return core.Forbidden("role %s may not %s %s", u.Role, a, r)
}

// saleAdmins may act on any user's sales; shiftAdmins on any user's shifts.
var (
	saleAdmins  = []core.Role{core.RoleAdmin}
	shiftAdmins = []core.Role{core.RoleAdmin, core.RoleShiftManager}
)

func CanReadSale(u core.User, s core.Sale) bool {
	return u.Role.In(saleAdmins...) || s.UserID == u.ID
}

func CanWriteSale(u core.User, s core.Sale) bool {
	return u.Role.In(saleAdmins...) || s.UserID == u.ID
}

func CanReadShift(u core.User, s core.Shift) bool {
	return u.Role.In(shiftAdmins...) || s.UserID == u.ID
}

func CanWriteShift(u core.User, s core.Shift) bool {
	return u.Role.In(shiftAdmins...) || s.UserID == u.ID
}

// SeesAllSalesBreakdown reports whether u may see per-user revenue.
func SeesAllSalesBreakdown(u core.User) bool {
	return u.Role == core.RoleAdmin
}

func resolveOwner(u core.User, requested int64, privileged []core.Role, what string) (int64, error) {
	if requested == 0 || requested == u.ID {
		return u.ID, nil
	}
	if u.Role.In(privileged...) {
		return requested, nil
	}
	return 0, core.Forbidden("cannot record %s for another user", what)
}

// SaleOwner returns the user a new sale is recorded for. Only admins may
// name someone else.
func SaleOwner(u core.User, requested int64) (int64, error) {
	return resolveOwner(u, requested, saleAdmins, "sales")
}

// ShiftOwner returns the user a new shift is recorded for. Admins and shift
// managers may name someone else.
func ShiftOwner(u core.User, requested int64) (int64, error) {
	return resolveOwner(u, requested, shiftAdmins, "shifts")
}

// SaleScope narrows a listing filter to the rows u may read.
func SaleScope(u core.User, f store.Filter) store.Filter {
	if !u.Role.In(saleAdmins...) {
		f.UserID = u.ID
	}
	return f
}

// ShiftScope narrows a listing filter to the rows u may read.
func ShiftScope(u core.User, f store.Filter) store.Filter {
	if !u.Role.In(shiftAdmins...) {
		f.UserID = u.ID
	}
	return f
}
