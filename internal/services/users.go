package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"bottega/internal/amqp"
	"bottega/internal/auth"
	"bottega/internal/core"
	"bottega/internal/policy"
	"bottega/internal/store"
)

// UserInput creates or edits an account. An empty Password on update
// keeps the current one.
type UserInput struct {
	Username   string
	Password   string
	Name       string
	Role       core.Role
	HourlyRate core.Money
}

func hashPassword(password string) (string, error) {
	hash, err := auth.HashPassword(password)
	if errors.Is(err, auth.ErrWeakPassword) {
		return "", core.Invalid("%v", err)
	}
	return hash, err
}

func (l *Ledger) CreateUser(ctx context.Context, identity core.User, in UserInput) (core.User, error) {
	if err := policy.Allow(identity, policy.Users, policy.Write); err != nil {
		return core.User{}, err
	}
	u := core.User{
		Username:   strings.TrimSpace(in.Username),
		Name:       strings.TrimSpace(in.Name),
		Role:       in.Role,
		HourlyRate: in.HourlyRate,
		CreatedAt:  time.Now().UTC(),
	}
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	hash, err := hashPassword(in.Password)
	if err != nil {
		return core.User{}, err
	}
	u.PasswordHash = hash

	err = l.store.Update(ctx, func(tx store.Tx) error {
		if err := policy.CheckUsernameFree(ctx, tx, u.Username, 0); err != nil {
			return err
		}
		var err error
		u.ID, err = tx.InsertUser(ctx, u)
		return err
	})
	if err != nil {
		return core.User{}, translate("user", 0, err)
	}
	l.committed(ctx, change{collection: store.Users, id: u.ID, op: amqp.OpCreate})
	return u, nil
}

// UpdateUser edits profile, role and rate. A rate change reprices every
// month's labor, so the whole summary cache goes.
func (l *Ledger) UpdateUser(ctx context.Context, identity core.User, id int64, in UserInput) (core.User, error) {
	if err := policy.Allow(identity, policy.Users, policy.Write); err != nil {
		return core.User{}, err
	}
	var hash string
	if in.Password != "" {
		var err error
		if hash, err = hashPassword(in.Password); err != nil {
			return core.User{}, err
		}
	}

	var u core.User
	err := l.store.Update(ctx, func(tx store.Tx) error {
		var err error
		if u, err = tx.GetUser(ctx, id); err != nil {
			return err
		}
		u.Username = strings.TrimSpace(in.Username)
		u.Name = strings.TrimSpace(in.Name)
		u.Role = in.Role
		u.HourlyRate = in.HourlyRate
		if hash != "" {
			u.PasswordHash = hash
		}
		if err := u.Validate(); err != nil {
			return err
		}
		if err := policy.CheckUsernameFree(ctx, tx, u.Username, id); err != nil {
			return err
		}
		return tx.UpdateUser(ctx, u)
	})
	if err != nil {
		return core.User{}, translate("user", id, err)
	}
	l.committed(ctx, change{collection: store.Users, id: id, op: amqp.OpUpdate})
	return u, nil
}

func (l *Ledger) DeleteUser(ctx context.Context, identity core.User, id int64) error {
	if err := policy.Allow(identity, policy.Users, policy.Write); err != nil {
		return err
	}
	err := l.store.Update(ctx, func(tx store.Tx) error {
		if err := policy.CheckUserDelete(ctx, tx, identity, id); err != nil {
			return err
		}
		if _, err := tx.GetUser(ctx, id); err != nil {
			return err
		}
		return tx.DeleteUser(ctx, id)
	})
	if err != nil {
		return translate("user", id, err)
	}
	l.committed(ctx, change{collection: store.Users, id: id, op: amqp.OpDelete})
	return nil
}

func (l *Ledger) ListUsers(ctx context.Context, identity core.User) ([]core.User, error) {
	if err := policy.Allow(identity, policy.Users, policy.Read); err != nil {
		return nil, err
	}
	var rows []core.User
	err := l.store.View(ctx, func(tx store.Tx) error {
		var err error
		rows, err = tx.FindUsers(ctx, store.Filter{})
		return err
	})
	if err != nil {
		return nil, core.StoreFailure("list users", err)
	}
	return rows, nil
}
