package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"bottega/internal/core"
	"bottega/internal/store"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// decode reads a JSON body into dst and runs its validate tags.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return core.Invalid("request body is empty")
		}
		return core.Invalid("malformed request body: %v", err)
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return core.Invalid("%v", err)
	}
	msgs := make([]string, 0, len(fields))
	for _, fe := range fields {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s fails %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		}
	}
	return core.Invalid("%s", strings.Join(msgs, "; "))
}

// pathID reads the {id} route parameter.
func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, core.Invalid("invalid id %q", raw)
	}
	return id, nil
}

func queryInt(q url.Values, key string) (int, bool, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, core.Invalid("%s must be a number", key)
	}
	return n, true, nil
}

func queryID(q url.Values, key string) (int64, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, core.Invalid("%s must be a positive id", key)
	}
	return n, nil
}

func queryDate(q url.Values, key string) (core.Date, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, core.Invalid("%s must be YYYY-MM-DD", key)
	}
	return d, nil
}

// parseFilter reads the listing filters shared by the collection
// endpoints: from, to, date, year+month, user_id, category_id,
// supplier_id and category_type. year and month select a whole month and
// cannot be combined with from or to.
func parseFilter(q url.Values) (store.Filter, error) {
	var f store.Filter
	var err error

	if f.From, err = queryDate(q, "from"); err != nil {
		return f, err
	}
	if f.To, err = queryDate(q, "to"); err != nil {
		return f, err
	}
	if f.Date, err = queryDate(q, "date"); err != nil {
		return f, err
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From.Time) {
		return f, core.Invalid("to is before from")
	}

	year, hasYear, err := queryInt(q, "year")
	if err != nil {
		return f, err
	}
	month, hasMonth, err := queryInt(q, "month")
	if err != nil {
		return f, err
	}
	if hasYear || hasMonth {
		if !hasYear || !hasMonth {
			return f, core.Invalid("year and month go together")
		}
		if !f.From.IsZero() || !f.To.IsZero() {
			return f, core.Invalid("year/month cannot be combined with from/to")
		}
		window, err := store.InMonth(year, month)
		if err != nil {
			return f, core.Invalid("%v", err)
		}
		f.From, f.To = window.From, window.To
	}

	if f.UserID, err = queryID(q, "user_id"); err != nil {
		return f, err
	}
	if f.CategoryID, err = queryID(q, "category_id"); err != nil {
		return f, err
	}
	if f.SupplierID, err = queryID(q, "supplier_id"); err != nil {
		return f, err
	}
	if t := strings.TrimSpace(q.Get("category_type")); t != "" {
		f.CategoryType = core.CategoryType(t)
		if !f.CategoryType.IsValid() {
			return f, core.Invalid("unknown category_type %q", t)
		}
	}
	return f, nil
}

// parseMonth reads year and month, defaulting to the current month.
func parseMonth(q url.Values, now time.Time) (int, int, error) {
	year, hasYear, err := queryInt(q, "year")
	if err != nil {
		return 0, 0, err
	}
	month, hasMonth, err := queryInt(q, "month")
	if err != nil {
		return 0, 0, err
	}
	if !hasYear {
		year = now.Year()
	}
	if !hasMonth {
		month = int(now.Month())
	}
	return year, month, nil
}
