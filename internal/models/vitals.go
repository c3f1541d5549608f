package models

import "time"

// Field names as they appear on the wire and in the table
const (
	FieldEventTS     = "event_ts"
	FieldPatientID   = "patient_id"
	FieldHeartRate   = "heart_rate"
	FieldTemperature = "temperature"
	FieldBPDiastolic = "bp_diastolic"
	FieldBPSystolic  = "bp_systolic"
	FieldSpO2        = "spo2"
	FieldIngestTS    = "ingest_ts"
)

// RequiredFields every incoming event must carry, in check order
var RequiredFields = []string{
	FieldEventTS,
	FieldPatientID,
	FieldHeartRate,
	FieldTemperature,
	FieldBPDiastolic,
	FieldBPSystolic,
	FieldSpO2,
}

// RawEvent untrusted JSON object as received from the queue
type RawEvent map[string]any

// VitalsRecord canonical, range-checked row ready for the warehouse
type VitalsRecord struct {
	EventTS     string    `json:"event_ts"`
	PatientID   int64     `json:"patient_id"`
	HeartRate   int64     `json:"heart_rate"`   // bpm
	Temperature float64   `json:"temperature"`  // °F
	BPDiastolic int64     `json:"bp_diastolic"` // mmHg
	BPSystolic  int64     `json:"bp_systolic"`  // mmHg
	SpO2        int64     `json:"spo2"`         // %
	IngestTS    time.Time `json:"ingest_ts"`
}

// ColumnType warehouse column type
type ColumnType string

const (
	ColumnTimestamp ColumnType = "TIMESTAMP"
	ColumnInteger   ColumnType = "INTEGER"
	ColumnFloat     ColumnType = "FLOAT"
)

// Column one entry of the output table schema
type Column struct {
	Name string
	Type ColumnType
}

// TableSchema output table columns in their fixed order
var TableSchema = []Column{
	{Name: FieldEventTS, Type: ColumnTimestamp},
	{Name: FieldPatientID, Type: ColumnInteger},
	{Name: FieldHeartRate, Type: ColumnInteger},
	{Name: FieldTemperature, Type: ColumnFloat},
	{Name: FieldBPDiastolic, Type: ColumnInteger},
	{Name: FieldBPSystolic, Type: ColumnInteger},
	{Name: FieldSpO2, Type: ColumnInteger},
	{Name: FieldIngestTS, Type: ColumnTimestamp},
}

// Values returns the row in TableSchema order
func (r VitalsRecord) Values() []any {
	return []any{
		r.EventTS,
		r.PatientID,
		r.HeartRate,
		r.Temperature,
		r.BPDiastolic,
		r.BPSystolic,
		r.SpO2,
		r.IngestTS,
	}
}
