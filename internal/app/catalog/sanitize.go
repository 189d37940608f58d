package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"catalog/internal/domain"
)

// maxStockCount keeps counts inside the range a float64 represents exactly.
const maxStockCount = 1 << 53

var mandatoryKeys = []string{"title", "price", "count"}

// Sanitize is the only place untyped product data is interpreted. It accepts a
// decoded JSON object (or a CSV row keyed by header) and fails with
// domain.ErrMalformedInput when the value is not an object or misses one of the
// mandatory keys entirely.
func Sanitize(raw any) (domain.ProductInput, error) {
	var obj map[string]any
	switch v := raw.(type) {
	case domain.RawProduct:
		obj = v
	case map[string]any:
		obj = v
	case map[string]string:
		obj = make(map[string]any, len(v))
		for k, s := range v {
			obj[k] = s
		}
	default:
		return domain.ProductInput{}, fmt.Errorf("%w: expected an object, got %T", domain.ErrMalformedInput, raw)
	}
	if obj == nil {
		return domain.ProductInput{}, fmt.Errorf("%w: expected an object, got null", domain.ErrMalformedInput)
	}

	for _, key := range mandatoryKeys {
		if _, ok := obj[key]; !ok {
			return domain.ProductInput{}, fmt.Errorf("%w: missing %q", domain.ErrMalformedInput, key)
		}
	}

	in := domain.ProductInput{
		Price: toNumber(obj["price"]),
		Count: toNumber(obj["count"]),
	}
	if title, ok := obj["title"].(string); ok {
		in.Title = strings.TrimSpace(title)
	}
	if description, ok := obj["description"].(string); ok {
		in.Description = description
	}
	if image, ok := obj["image"].(string); ok {
		in.Image = strings.TrimSpace(image)
	}
	return in, nil
}

// Validate never fails fast: every violated rule is reported.
func Validate(in domain.ProductInput) []domain.FieldError {
	var errs []domain.FieldError

	if strings.TrimSpace(in.Title) == "" {
		errs = append(errs, domain.FieldError{
			Field:   "title",
			Message: "Title is required and must be a non-empty string",
		})
	}

	if !isFinite(in.Price) || in.Price <= 0 {
		errs = append(errs, domain.FieldError{
			Field:   "price",
			Message: "Price is required and must be a positive number",
		})
	}

	if !isFinite(in.Count) || in.Count < 0 || in.Count != math.Trunc(in.Count) || in.Count > maxStockCount {
		errs = append(errs, domain.FieldError{
			Field:   "count",
			Message: "Count is required and must be a non-negative integer",
		})
	}

	return errs
}

// SanitizeAndValidate runs both steps and folds the outcome into one error.
func SanitizeAndValidate(raw any) (domain.ProductInput, error) {
	in, err := Sanitize(raw)
	if err != nil {
		return domain.ProductInput{}, err
	}
	if fieldErrs := Validate(in); len(fieldErrs) > 0 {
		return in, domain.NewValidationError(fieldErrs)
	}
	return in, nil
}

// toNumber follows loose numeric coercion: null and blank strings become 0,
// booleans become 0 or 1, anything unparseable becomes NaN.
func toNumber(v any) float64 {
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case bool:
		if n {
			return 1
		}
		return 0
	case json.Number:
		return parseNumber(n.String())
	case string:
		return parseNumber(n)
	default:
		return math.NaN()
	}
}

func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return f
		}
		return math.NaN()
	}
	return f
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
