package validators

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/donations-backend/pkg/errors"
)

// MaxBodyBytes caps order request bodies. Nothing legitimate comes close.
const MaxBodyBytes = 64 << 10

var (
	panPattern   = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

	validate = buildValidator()
)

var fieldMessages = map[string]func(param string) string{
	"required": func(string) string { return "is required" },
	"email":    func(string) string { return "must be a valid email" },
	"numeric":  func(string) string { return "must be numeric" },
	"pan":      func(string) string { return "must be a valid PAN" },
	"phone":    func(string) string { return "must be a valid phone number" },
	"money":    func(string) string { return "must be a non-negative amount with at most 2 decimals" },
	"min":      func(p string) string { return "must be at least " + p },
	"max":      func(p string) string { return "must be at most " + p },
	"oneof":    func(p string) string { return "must be one of [" + p + "]" },
}

func buildValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)
	// amounts are validated on their canonical string form
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	rules := map[string]validator.Func{
		"pan":   matchTrimmed(panPattern, strings.ToUpper),
		"phone": matchTrimmed(phonePattern, nil),
		"money": validMoney,
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(err)
		}
	}
	return v
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

func matchTrimmed(re *regexp.Regexp, normalize func(string) string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		s := strings.TrimSpace(fl.Field().String())
		if normalize != nil {
			s = normalize(s)
		}
		return re.MatchString(s)
	}
}

func validMoney(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	return !d.IsNegative() && d.Exponent() >= -2
}

// ValidateStruct runs the tag rules against an already decoded value.
func ValidateStruct(dest any) error {
	err := validate.Struct(dest)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = messageFor(fe)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}

func messageFor(fe validator.FieldError) string {
	if msg, ok := fieldMessages[fe.Tag()]; ok {
		return msg(fe.Param())
	}
	return "is invalid"
}

// ReadBody buffers the request body through http.MaxBytesReader, so
// middleware that inspects the body never reads past MaxBodyBytes.
func ReadBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errBodyTooLarge()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
	}
	return raw, nil
}

func errBodyTooLarge() error {
	return pkgerrors.New(pkgerrors.CodeValidation, "request body too large").
		WithDetails(map[string]any{"max_bytes": MaxBodyBytes})
}

// DecodeJSONBody strictly decodes a single JSON object into dest and
// validates it. Unknown fields, trailing data and oversized bodies are
// validation errors.
func DecodeJSONBody(r *http.Request, dest any) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
	}
	if len(raw) > MaxBodyBytes {
		return errBodyTooLarge()
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").
			WithDetails(map[string]any{"error": err.Error()})
	}
	if dec.More() {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body must contain a single JSON object")
	}
	return ValidateStruct(dest)
}
