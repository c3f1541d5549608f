// Package validator turns raw queue payloads into VitalsRecords.
//
// A Validator holds no mutable state and performs no I/O beyond reading its
// clock, so one value can be shared by any number of goroutines.
package validator

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"patientvitals/internal/models"
)

// bound closed interval for one numeric field
type bound struct {
	field    string
	min, max float64
}

// range checks, applied in this order
var bounds = []bound{
	{models.FieldPatientID, 1, 10000},
	{models.FieldHeartRate, 30, 220},
	{models.FieldTemperature, 85.0, 110.0},
	{models.FieldBPDiastolic, 30, 150},
	{models.FieldBPSystolic, 50, 250},
	{models.FieldSpO2, 50, 100},
}

// timestamp layouts accepted for event_ts. All of them are also accepted by
// Postgres TIMESTAMPTZ input; zone-less values take the session time zone.
var eventTSLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Validator validates and normalizes vitals payloads
type Validator struct {
	now func() time.Time
}

// Option configures a Validator
type Option func(*Validator)

// WithClock overrides the clock used for ingest_ts
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// New creates a Validator
func New(opts ...Option) *Validator {
	v := &Validator{now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

var defaultValidator = New()

// Validate validates raw with the wall clock. See (*Validator).Validate.
func Validate(raw []byte) (models.VitalsRecord, bool) {
	return defaultValidator.Validate(raw)
}

// Validate returns the canonical record for raw, or false when raw must be
// dropped. The caller is told nothing about why.
func (v *Validator) Validate(raw []byte) (models.VitalsRecord, bool) {
	rec, err := v.Check(raw)
	return rec, err == nil
}

// Check makes the same decision as Validate but reports a drop as a
// *DropError.
func (v *Validator) Check(raw []byte) (models.VitalsRecord, error) {
	rec, dropErr := parse(raw)
	if dropErr != nil {
		return models.VitalsRecord{}, dropErr
	}
	rec.IngestTS = v.now().UTC()
	return rec, nil
}

func parse(raw []byte) (models.VitalsRecord, *DropError) {
	var rec models.VitalsRecord

	if !utf8.Valid(raw) {
		return rec, &DropError{Reason: ErrInvalidEncoding}
	}

	obj, dropErr := decodeObject(raw)
	if dropErr != nil {
		return rec, dropErr
	}

	for _, field := range models.RequiredFields {
		if _, ok := obj[field]; !ok {
			return rec, &DropError{Reason: ErrMissingField, Field: field}
		}
	}

	eventTS, ok := obj[models.FieldEventTS].(string)
	if !ok || !parseableTimestamp(eventTS) {
		return rec, &DropError{Reason: ErrBadType, Field: models.FieldEventTS}
	}
	rec.EventTS = eventTS

	ints := []struct {
		field string
		dst   *int64
	}{
		{models.FieldPatientID, &rec.PatientID},
		{models.FieldHeartRate, &rec.HeartRate},
	}
	for _, f := range ints {
		n, ok := coerceInt(obj[f.field])
		if !ok {
			return rec, &DropError{Reason: ErrBadType, Field: f.field}
		}
		*f.dst = n
	}

	temp, ok := coerceFloat(obj[models.FieldTemperature])
	if !ok {
		return rec, &DropError{Reason: ErrBadType, Field: models.FieldTemperature}
	}
	rec.Temperature = temp

	ints = []struct {
		field string
		dst   *int64
	}{
		{models.FieldBPDiastolic, &rec.BPDiastolic},
		{models.FieldBPSystolic, &rec.BPSystolic},
		{models.FieldSpO2, &rec.SpO2},
	}
	for _, f := range ints {
		n, ok := coerceInt(obj[f.field])
		if !ok {
			return rec, &DropError{Reason: ErrBadType, Field: f.field}
		}
		*f.dst = n
	}

	values := map[string]float64{
		models.FieldPatientID:   float64(rec.PatientID),
		models.FieldHeartRate:   float64(rec.HeartRate),
		models.FieldTemperature: rec.Temperature,
		models.FieldBPDiastolic: float64(rec.BPDiastolic),
		models.FieldBPSystolic:  float64(rec.BPSystolic),
		models.FieldSpO2:        float64(rec.SpO2),
	}
	for _, b := range bounds {
		// written as a negated conjunction so NaN is rejected
		if val := values[b.field]; !(val >= b.min && val <= b.max) {
			return rec, &DropError{Reason: ErrOutOfRange, Field: b.field}
		}
	}

	return rec, nil
}

// parseableTimestamp reports whether s parses with one of eventTSLayouts.
// The string itself is stored unchanged.
func parseableTimestamp(s string) bool {
	for _, layout := range eventTSLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// decodeObject parses exactly one JSON object, keeping numbers as json.Number
func decodeObject(raw []byte) (models.RawEvent, *DropError) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, &DropError{Reason: ErrMalformedJSON}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &DropError{Reason: ErrMalformedJSON}
	}

	obj, ok := value.(map[string]any)
	if !ok {
		return nil, &DropError{Reason: ErrNotObject}
	}
	return obj, nil
}

// coerceInt accepts JSON numbers (fraction truncated toward zero) and strings
// holding a base-10 integer. Magnitudes beyond int64 saturate so the range
// check rejects them.
func coerceInt(v any) (int64, bool) {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, true
		}
		f, ok := parseFloat(string(val))
		if !ok || math.IsNaN(f) {
			return 0, false
		}
		return saturate(math.Trunc(f)), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			var numErr *strconv.NumError
			if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
				return n, true
			}
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// coerceFloat accepts JSON numbers and numeric strings
func coerceFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case json.Number:
		return parseFloat(string(val))
	case string:
		return parseFloat(strings.TrimSpace(val))
	default:
		return 0, false
	}
}

// parseFloat treats overflow as ±Inf rather than an error
func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return f, true
		}
		return 0, false
	}
	return f, true
}

func saturate(f float64) int64 {
	switch {
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	default:
		return int64(f)
	}
}
