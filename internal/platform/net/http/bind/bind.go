// Package bind decodes request bodies and validates them with go-playground/validator
package bind

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"detention/internal/core/orderid"
	perr "detention/internal/platform/errors"
	"detention/internal/platform/logger"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/shopspring/decimal"
)

// ValidatorSvc pairs the shared validator with its english translator
type ValidatorSvc struct {
	Validator  *validator.Validate
	Translator ut.Translator
}

var (
	vOnce sync.Once
	vSvc  *ValidatorSvc
)

// Get returns the process wide validator, building it on first use
func Get() *ValidatorSvc {
	vOnce.Do(func() { vSvc = build() })
	return vSvc
}

func build() *ValidatorSvc {
	loc := en.New()
	trans, _ := ut.New(loc, loc).GetTranslator("en")

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	_ = en_translations.RegisterDefaultTranslations(v, trans)

	translate(v, trans, "min", "{0} must be at least {1}")
	translate(v, trans, "max", "{0} must be at most {1}")

	_ = v.RegisterValidation("order_id", func(fl validator.FieldLevel) bool {
		return orderid.Valid(fl.Field().String())
	})
	translate(v, trans, "order_id", "{0} must be a valid order id")

	// money amounts compare as numbers (gt, lte, ...)
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})

	return &ValidatorSvc{Validator: v, Translator: trans}
}

// jsonName reports fields by their json name so messages match the wire
func jsonName(fld reflect.StructField) string {
	tag := fld.Tag.Get("json")
	if tag == "" || tag == "-" {
		return fld.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return fld.Name
	}
	return name
}

func translate(v *validator.Validate, trans ut.Translator, tag, text string) {
	_ = v.RegisterTranslation(tag, trans,
		func(t ut.Translator) error { return t.Add(tag, text, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			msg, _ := t.T(tag, fe.Field(), fe.Param())
			return msg
		},
	)
}

func decimalValue(f reflect.Value) any {
	d, ok := f.Interface().(decimal.Decimal)
	if !ok {
		return nil
	}
	v, _ := d.Float64()
	return v
}

// JSONOptions controls how ParseJSON reads a body
type JSONOptions struct {
	MaxBytes        int64 // 0 means 1MB
	DisallowUnknown bool
	AllowEmptyBody  bool
}

var defaultJSON = JSONOptions{MaxBytes: 1 << 20, DisallowUnknown: true}

// ParseJSON decodes a single JSON value into T and validates it.
// Bodyless GET, DELETE, HEAD and OPTIONS requests yield the zero value
func ParseJSON[T any](r *http.Request, opts ...JSONOptions) (T, error) {
	var zero T
	o := defaultJSON
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = defaultJSON.MaxBytes
	}

	body, err := readBody(r, o.MaxBytes)
	if err != nil {
		return zero, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		if o.AllowEmptyBody || safeMethod(r.Method) {
			return zero, nil
		}
		return zero, perr.JSONErrf("empty body")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	if o.DisallowUnknown {
		dec.DisallowUnknownFields()
	}
	var dst T
	if err := dec.Decode(&dst); err != nil {
		return zero, perr.JSONErrf("invalid JSON: %v", err)
	}
	if dec.More() {
		return zero, perr.JSONErrf("unexpected trailing data")
	}

	if err := Get().Validator.Struct(dst); err != nil {
		var inv *validator.InvalidValidationError
		if errors.As(err, &inv) {
			logger.Get().Error().Err(inv).Msg("validator internal error")
			return zero, perr.JSONErrf("validation error")
		}
		vs := Violations(err)
		return zero, perr.WithField(perr.Validationf("%s", vs[0].Message), vs[0].Field)
	}
	return dst, nil
}

func readBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer func() {
		if err := r.Body.Close(); err != nil {
			logger.Get().Warn().Err(err).Msg("close request body")
		}
	}()
	b, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, perr.JSONErrf("read body: %v", err)
	}
	if int64(len(b)) > limit {
		return nil, perr.JSONErrf("body exceeds %d bytes", limit)
	}
	return b, nil
}

func safeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodDelete, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// Violation is one translated field error
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Violations returns every translated field error, in struct order.
// Non-validation errors become a single violation with no field
func Violations(err error) []Violation {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		out := make([]Violation, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, Violation{Field: fieldPath(fe), Message: fe.Translate(Get().Translator)})
		}
		return out
	}
	return []Violation{{Message: err.Error()}}
}

// fieldPath drops the root struct name, keeping nested paths like rules[1].free_minutes
func fieldPath(fe validator.FieldError) string {
	if _, rest, ok := strings.Cut(fe.Namespace(), "."); ok {
		return rest
	}
	return fe.Field()
}
