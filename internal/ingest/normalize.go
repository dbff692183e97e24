// Package ingest turns loosely-typed prompt telemetry payloads into
// fully-populated model.PromptLog records.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gamefusion/promptlog/internal/model"
)

// Payload is a decoded JSON request body. Numbers should be json.Number
// (decoder.UseNumber) but plain Go numbers are accepted too.
type Payload map[string]any

// RequiredFields must be present in every payload, checked in this order.
var RequiredFields = []string{"type", "prompt", "response"}

const (
	DefaultUnknown = "unknown"
	DefaultVersion = "1.0"
	DefaultLLM     = "llama"
)

// MaxCount bounds tokens, inputSize and outputSize so per-project sums stay
// far from int64 overflow.
const MaxCount = math.MaxInt32

// Cost is stored as NUMERIC(20,10).
const costScale = 10

var maxCost = decimal.New(1, 20-costScale)

// clientTimeLayouts are accepted for dateTime. Zone-less values are read as UTC.
var clientTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Normalizer fills defaults for every optional field and stamps a fresh
// identifier and server timestamp. The zero value is not usable; call NewNormalizer.
type Normalizer struct {
	newID    func() uuid.UUID
	now      func() time.Time
	validate *validator.Validate
}

func NewNormalizer() *Normalizer {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Normalizer{
		newID:    uuid.New,
		now:      time.Now,
		validate: v,
	}
}

// CheckRequired reports the first problem with the payload's presence rules:
// an empty body, or the first missing entry of RequiredFields.
func CheckRequired(p Payload) error {
	if len(p) == 0 {
		return &ValidationError{Reason: "No JSON data provided"}
	}
	for _, field := range RequiredFields {
		if _, ok := p[field]; !ok {
			return missing(field)
		}
	}
	return nil
}

// Normalize builds a PromptLog from p. Unknown keys are ignored.
func (n *Normalizer) Normalize(p Payload) (*model.PromptLog, error) {
	if err := CheckRequired(p); err != nil {
		return nil, err
	}

	entryType, err := stringField(p, "type", "")
	if err != nil {
		return nil, err
	}
	if entryType == "" {
		return nil, invalid("type", "must be a non-empty string")
	}
	prompt, err := stringField(p, "prompt", "")
	if err != nil {
		return nil, err
	}
	response, err := stringField(p, "response", "")
	if err != nil {
		return nil, err
	}

	entry := &model.PromptLog{
		Type:     entryType,
		Prompt:   prompt,
		Response: response,
	}

	strs := []struct {
		key  string
		def  string
		dest *string
	}{
		{"category", DefaultUnknown, &entry.Category},
		{"userId", DefaultUnknown, &entry.UserID},
		{"projectId", DefaultUnknown, &entry.ProjectID},
		{"sessionId", DefaultUnknown, &entry.SessionID},
		{"correlationId", model.NilCorrelationID, &entry.CorrelationID},
		{"environment", DefaultUnknown, &entry.Environment},
		{"user", DefaultUnknown, &entry.User},
		{"version", DefaultVersion, &entry.Version},
		{"llm", DefaultLLM, &entry.LLM},
	}
	for _, s := range strs {
		if *s.dest, err = stringField(p, s.key, s.def); err != nil {
			return nil, err
		}
	}

	ints := []struct {
		key  string
		dest *int64
	}{
		{"inputSize", &entry.InputSize},
		{"outputSize", &entry.OutputSize},
		{"tokens", &entry.Tokens},
	}
	for _, i := range ints {
		if *i.dest, err = countField(p, i.key); err != nil {
			return nil, err
		}
	}

	if entry.Cost, err = costField(p, "cost"); err != nil {
		return nil, err
	}

	docs := []struct {
		key  string
		dest *model.Document
	}{
		{"errorDetails", &entry.ErrorDetails},
		{"latencyBreakdown", &entry.LatencyBreakdown},
		{"modelParams", &entry.ModelParams},
		{"context", &entry.Context},
	}
	for _, d := range docs {
		if *d.dest, err = documentField(p, d.key); err != nil {
			return nil, err
		}
	}

	if entry.ClientDateTime, err = clientTimeField(p, "dateTime"); err != nil {
		return nil, err
	}

	if err := n.validate.Struct(entry); err != nil {
		return nil, fieldError(err)
	}

	entry.ID = n.newID()
	entry.Timestamp = n.now().UTC()
	return entry, nil
}

// lookup treats JSON null the same as an absent key.
func lookup(p Payload, key string) (any, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func stringField(p Payload, key, def string) (string, error) {
	v, ok := lookup(p, key)
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", invalid(key, "must be a string")
	}
	if strings.ContainsRune(s, 0) {
		return "", invalid(key, "must not contain NUL characters")
	}
	return s, nil
}

func numberField(p Payload, key string) (decimal.Decimal, bool, error) {
	v, ok := lookup(p, key)
	if !ok {
		return decimal.Zero, false, nil
	}
	var (
		d   decimal.Decimal
		err error
	)
	switch n := v.(type) {
	case json.Number:
		d, err = decimal.NewFromString(n.String())
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			err = fmt.Errorf("not finite")
		} else {
			d = decimal.NewFromFloat(n)
		}
	case float32:
		d = decimal.NewFromFloat32(n)
	case int:
		d = decimal.NewFromInt(int64(n))
	case int64:
		d = decimal.NewFromInt(n)
	case int32:
		d = decimal.NewFromInt32(n)
	default:
		err = fmt.Errorf("unsupported type %T", v)
	}
	if err != nil {
		return decimal.Zero, true, invalid(key, "must be a number")
	}
	return d, true, nil
}

func countField(p Payload, key string) (int64, error) {
	d, ok, err := numberField(p, key)
	if err != nil || !ok {
		return 0, err
	}
	if d.IsNegative() || !d.IsInteger() {
		return 0, invalid(key, "must be a non-negative integer")
	}
	if d.GreaterThan(decimal.NewFromInt(MaxCount)) {
		return 0, invalid(key, fmt.Sprintf("must be at most %d", MaxCount))
	}
	return d.IntPart(), nil
}

func costField(p Payload, key string) (decimal.Decimal, error) {
	d, _, err := numberField(p, key)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, invalid(key, "must be a non-negative number")
	}
	if !d.Equal(d.Truncate(costScale)) {
		return decimal.Zero, invalid(key, fmt.Sprintf("must have at most %d decimal places", costScale))
	}
	if d.GreaterThanOrEqual(maxCost) {
		return decimal.Zero, invalid(key, "must be less than "+maxCost.String())
	}
	return d, nil
}

// documentField always returns a non-nil map so readers never nil-check.
func documentField(p Payload, key string) (model.Document, error) {
	v, ok := lookup(p, key)
	if !ok {
		return model.Document{}, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, invalid(key, "must be an object")
	}
	if containsNUL(m) {
		return nil, invalid(key, "must not contain NUL characters")
	}
	return model.Document(m), nil
}

// containsNUL walks a decoded JSON value. JSONB rejects \u0000 in keys and strings.
func containsNUL(v any) bool {
	switch t := v.(type) {
	case string:
		return strings.ContainsRune(t, 0)
	case map[string]any:
		for k, e := range t {
			if strings.ContainsRune(k, 0) || containsNUL(e) {
				return true
			}
		}
	case []any:
		for _, e := range t {
			if containsNUL(e) {
				return true
			}
		}
	}
	return false
}

// fieldError reports the first struct-tag violation against its JSON field name.
func fieldError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Reason: "invalid prompt log: " + err.Error()}
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return invalid(fe.Field(), "must be a non-empty string")
	case "max":
		if fe.Kind() == reflect.String {
			return invalid(fe.Field(), "must be at most "+fe.Param()+" characters")
		}
		return invalid(fe.Field(), "must be at most "+fe.Param())
	case "min":
		return invalid(fe.Field(), "must be at least "+fe.Param())
	}
	return invalid(fe.Field(), "failed "+fe.Tag()+" check")
}

func clientTimeField(p Payload, key string) (*time.Time, error) {
	s, err := stringField(p, key, "")
	if err != nil || s == "" {
		return nil, err
	}
	for _, layout := range clientTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, invalid(key, "must be an ISO-8601 date-time")
}
