// Package seed loads reference data (the first admin, the category list
// and the usual suppliers) into an empty or partly filled store.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"bottega/internal/auth"
	"bottega/internal/core"
	"bottega/internal/store"
)

//go:embed default.yaml
var defaultSeed []byte

type File struct {
	Users      []User     `yaml:"users"`
	Categories []Category `yaml:"categories"`
	Suppliers  []Supplier `yaml:"suppliers"`
}

type User struct {
	Username   string    `yaml:"username"`
	Password   string    `yaml:"password"`
	Name       string    `yaml:"name"`
	Role       core.Role `yaml:"role"`
	HourlyRate string    `yaml:"hourly_rate,omitempty"`
}

type Category struct {
	Name string            `yaml:"name"`
	Type core.CategoryType `yaml:"type"`
}

type Supplier struct {
	Name        string `yaml:"name"`
	ContactName string `yaml:"contact_name,omitempty"`
	Phone       string `yaml:"phone,omitempty"`
	Email       string `yaml:"email,omitempty"`
}

// Result counts the rows Apply inserted.
type Result struct {
	Users      int
	Categories int
	Suppliers  int
}

func (r Result) String() string {
	return fmt.Sprintf("%d users, %d categories, %d suppliers", r.Users, r.Categories, r.Suppliers)
}

// Default returns the embedded seed.
func Default() (*File, error) {
	return Parse(defaultSeed)
}

// Load reads path, or the embedded seed when path is empty.
func Load(path string) (*File, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a seed document, rejecting unknown keys.
func Parse(data []byte) (*File, error) {
	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	for i, u := range f.Users {
		if _, err := u.rate(); err != nil {
			return fmt.Errorf("users[%d]: %w", i, err)
		}
		probe := core.User{Username: u.Username, Name: u.Name, Role: u.Role}
		if err := probe.Validate(); err != nil {
			return fmt.Errorf("users[%d]: %w", i, err)
		}
	}
	for i, c := range f.Categories {
		if err := (core.Category{Name: c.Name, Type: c.Type}).Validate(); err != nil {
			return fmt.Errorf("categories[%d]: %w", i, err)
		}
	}
	for i, s := range f.Suppliers {
		if err := (core.Supplier{Name: s.Name}).Validate(); err != nil {
			return fmt.Errorf("suppliers[%d]: %w", i, err)
		}
	}
	return nil
}

func (u User) rate() (core.Money, error) {
	if strings.TrimSpace(u.HourlyRate) == "" {
		return core.Money{}, nil
	}
	m, err := core.ParseMoney(u.HourlyRate)
	if err != nil {
		return core.Money{}, fmt.Errorf("hourly_rate %q: %w", u.HourlyRate, err)
	}
	return m, nil
}

// Apply inserts whatever of f is missing in one transaction. Users match
// by username, categories by name and type, suppliers by name; existing
// rows are left alone so a changed admin password survives a reseed.
func Apply(ctx context.Context, s store.Store, f *File) (Result, error) {
	// hash outside the write lock; bcrypt is slow
	hashes := make([]string, len(f.Users))
	for i, u := range f.Users {
		hash, err := auth.HashPassword(u.Password)
		if err != nil {
			return Result{}, fmt.Errorf("users[%d]: %w", i, err)
		}
		hashes[i] = hash
	}

	var res Result
	err := s.Update(ctx, func(tx store.Tx) error {
		for i, u := range f.Users {
			n, err := tx.Count(ctx, store.Users, store.Filter{Username: u.Username})
			if err != nil {
				return err
			}
			if n > 0 {
				continue
			}
			rate, _ := u.rate()
			if _, err := tx.InsertUser(ctx, core.User{
				Username:     u.Username,
				PasswordHash: hashes[i],
				Name:         u.Name,
				Role:         u.Role,
				HourlyRate:   rate,
				CreatedAt:    time.Now().UTC(),
			}); err != nil {
				return fmt.Errorf("insert user %s: %w", u.Username, err)
			}
			res.Users++
		}

		categories, err := tx.FindCategories(ctx, store.Filter{})
		if err != nil {
			return err
		}
		have := make(map[Category]bool, len(categories))
		for _, c := range categories {
			have[Category{Name: c.Name, Type: c.Type}] = true
		}
		for _, c := range f.Categories {
			if have[c] {
				continue
			}
			if _, err := tx.InsertCategory(ctx, core.Category{Name: c.Name, Type: c.Type}); err != nil {
				return fmt.Errorf("insert category %s: %w", c.Name, err)
			}
			have[c] = true
			res.Categories++
		}

		suppliers, err := tx.FindSuppliers(ctx, store.Filter{})
		if err != nil {
			return err
		}
		named := make(map[string]bool, len(suppliers))
		for _, sup := range suppliers {
			named[strings.ToLower(sup.Name)] = true
		}
		for _, sup := range f.Suppliers {
			if named[strings.ToLower(sup.Name)] {
				continue
			}
			if _, err := tx.InsertSupplier(ctx, core.Supplier{
				Name:        sup.Name,
				ContactName: sup.ContactName,
				Phone:       sup.Phone,
				Email:       sup.Email,
			}); err != nil {
				return fmt.Errorf("insert supplier %s: %w", sup.Name, err)
			}
			named[strings.ToLower(sup.Name)] = true
			res.Suppliers++
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	slog.InfoContext(ctx, "Seed applied", "component", "cli", "users", res.Users, "categories", res.Categories, "suppliers", res.Suppliers)
	return res, nil
}
