package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/dharsanguruparan/WallDrop/internal/categories"
	"github.com/dharsanguruparan/WallDrop/internal/model"
)

// Price accepts a JSON number or a numeric string.
type Price float64

// UnmarshalJSON implements json.Unmarshaler.
func (p *Price) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*p = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("price %q is not a number", s)
		}
		*p = Price(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("price is not a number: %w", err)
	}
	*p = Price(f)
	return nil
}

// CatalogInput is the create/update payload for a catalog entry.
type CatalogInput struct {
	Title       string   `json:"title" validate:"required,min=1,max=100"`
	Description string   `json:"description" validate:"max=1000"`
	Category    string   `json:"category" validate:"required,min=1,max=50"`
	Tags        []string `json:"tags" validate:"max=20,dive,min=1,max=30"`
	Price       Price    `json:"price" validate:"gte=0"`
	ImageURL    string   `json:"imageUrl" validate:"required,url"`
	Dimensions  string   `json:"dimensions" validate:"max=20"`
}

// Metadata converts the payload into normalized metadata.
func (in CatalogInput) Metadata() model.Metadata {
	tags := make([]string, 0, len(in.Tags))
	for _, t := range in.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return model.Metadata{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Category:    categories.Normalize(in.Category),
		Price:       float64(in.Price),
		Tags:        tags,
		Dimensions:  strings.TrimSpace(in.Dimensions),
	}
}

// FieldError describes one failed constraint.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError carries every failed constraint of a payload.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validator wraps a configured go-playground validator.
type Validator struct {
	v *validatorv10.Validate
}

// NewValidator builds a Validator that reports JSON field names.
func NewValidator() *Validator {
	v := validatorv10.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

// Catalog validates a catalog payload, returning a *ValidationError listing
// every failed field.
func (v *Validator) Catalog(in CatalogInput) error {
	err := v.v.Struct(in)
	if err == nil {
		return nil
	}
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		return fmt.Errorf("validate catalog input: %w", err)
	}
	out := &ValidationError{}
	for _, fe := range ve {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Namespace()[strings.Index(fe.Namespace(), ".")+1:],
			Rule:    fe.Tag(),
			Message: fieldMessage(fe),
		})
	}
	return out
}

func fieldMessage(fe validatorv10.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s allows at most %s entries", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", fe.Field(), fe.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}
