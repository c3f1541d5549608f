// Package simulator publishes synthetic patient vitals, some of them
// deliberately broken, to exercise the pipeline end to end.
package simulator

import (
	"math"
	"math/rand"
	"time"

	"patientvitals/internal/config"
	"patientvitals/internal/models"
)

// IsErrorField marks payloads that had an error injected. The validator
// ignores it like any other extra key.
const IsErrorField = "_is_error"

// injectable modes picked from when the mode is "mixed"
var injectable = []string{
	config.ErrorModeMissingField,
	config.ErrorModeNullField,
	config.ErrorModeNegativeValue,
	config.ErrorModeOutOfRange,
	config.ErrorModeBadType,
}

// fields eligible for missing_field / null_field
var corruptible = []string{
	models.FieldPatientID,
	models.FieldEventTS,
	models.FieldHeartRate,
	models.FieldTemperature,
	models.FieldBPSystolic,
	models.FieldBPDiastolic,
	models.FieldSpO2,
}

// Generator builds vitals events. Not safe for concurrent use: it owns its
// random source.
type Generator struct {
	rng *rand.Rand
	now func() time.Time

	patientCount      int
	errorRate         float64
	errorMode         string
	missingFieldStyle string
}

// NewGenerator creates a generator from the simulator settings
func NewGenerator(cfg *config.SimulatorConfig, rng *rand.Rand) *Generator {
	return &Generator{
		rng:               rng,
		now:               time.Now,
		patientCount:      cfg.Simulator.PatientCount,
		errorRate:         cfg.Simulator.ErrorRate,
		errorMode:         cfg.Simulator.ErrorMode,
		missingFieldStyle: cfg.Simulator.MissingFieldStyle,
	}
}

// Vitals returns a realistic reading for patientID
func (g *Generator) Vitals(patientID int) models.RawEvent {
	return models.RawEvent{
		models.FieldEventTS:     g.now().UTC().Format(time.RFC3339Nano),
		models.FieldPatientID:   patientID,
		models.FieldHeartRate:   g.between(55, 130),
		models.FieldTemperature: math.Round((96.5+g.rng.Float64()*6.0)*10) / 10,
		models.FieldBPSystolic:  g.between(90, 160),
		models.FieldBPDiastolic: g.between(55, 110),
		models.FieldSpO2:        g.between(88, 100),
	}
}

// InjectError corrupts event in place according to mode and returns the
// mode actually applied ("mixed" resolves to a concrete one, "none" applies
// nothing).
func (g *Generator) InjectError(event models.RawEvent, mode string) string {
	if mode == config.ErrorModeMixed {
		mode = injectable[g.rng.Intn(len(injectable))]
	}

	switch mode {
	case config.ErrorModeMissingField:
		field := corruptible[g.rng.Intn(len(corruptible))]
		if g.missingFieldStyle == config.MissingFieldDelete {
			delete(event, field)
		} else {
			event[field] = nil
		}
	case config.ErrorModeNullField:
		event[corruptible[g.rng.Intn(len(corruptible))]] = nil
	case config.ErrorModeNegativeValue:
		event[models.FieldHeartRate] = -1
	case config.ErrorModeOutOfRange:
		event[models.FieldSpO2] = 150
	case config.ErrorModeBadType:
		event[models.FieldBPSystolic] = "one-sixty"
	default:
		return config.ErrorModeNone
	}
	return mode
}

// Next picks a random patient, generates a reading and injects an error with
// the configured probability. It returns the event and the injected mode
// (empty when the event is clean).
func (g *Generator) Next() (models.RawEvent, string) {
	event := g.Vitals(g.rng.Intn(g.patientCount) + 1)

	injected := ""
	if g.rng.Float64() < g.errorRate {
		if mode := g.InjectError(event, g.errorMode); mode != config.ErrorModeNone {
			injected = mode
		}
	}
	event[IsErrorField] = injected != ""

	return event, injected
}

// between returns a uniform int in [lo, hi]
func (g *Generator) between(lo, hi int) int {
	return lo + g.rng.Intn(hi-lo+1)
}
