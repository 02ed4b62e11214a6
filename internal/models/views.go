package models

import (
	"fmt"
	"time"
)

// Reading is the typed view of a KindReading payload. The storage layer
// keeps the open map for forward compatibility with new field types; domain
// logic decodes through here instead of poking the map directly.
type Reading struct {
	EquipmentID string
	Hour        int
	Temperature float64
	Pressure    float64
	FlowRate    float64
	Notes       string
	RecordedAt  time.Time
}

// AsReading decodes the record payload into a typed reading.
func (r *Record) AsReading() (*Reading, error) {
	if r.Kind != KindReading {
		return nil, fmt.Errorf("record %s: kind %q is not a reading", r.ID, r.Kind)
	}
	rd := &Reading{
		EquipmentID: payloadString(r.Payload, "equipmentId"),
		Notes:       payloadString(r.Payload, "notes"),
	}
	rd.Hour = int(payloadFloat(r.Payload, "hour"))
	rd.Temperature = payloadFloat(r.Payload, "temperature")
	rd.Pressure = payloadFloat(r.Payload, "pressure")
	rd.FlowRate = payloadFloat(r.Payload, "flowRate")
	if s := payloadString(r.Payload, "recordedAt"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("record %s: recordedAt: %w", r.ID, err)
		}
		rd.RecordedAt = t
	}
	return rd, nil
}

// DailyRollup is the typed view of a KindRollup payload.
type DailyRollup struct {
	Date           string
	ReadingCount   int
	CompleteCount  int
	AvgTemperature float64
	MaxPressure    float64
}

// AsRollup decodes the record payload into a typed daily rollup.
func (r *Record) AsRollup() (*DailyRollup, error) {
	if r.Kind != KindRollup {
		return nil, fmt.Errorf("record %s: kind %q is not a rollup", r.ID, r.Kind)
	}
	return &DailyRollup{
		Date:           payloadString(r.Payload, "date"),
		ReadingCount:   int(payloadFloat(r.Payload, "readingCount")),
		CompleteCount:  int(payloadFloat(r.Payload, "completeCount")),
		AvgTemperature: payloadFloat(r.Payload, "avgTemperature"),
		MaxPressure:    payloadFloat(r.Payload, "maxPressure"),
	}, nil
}

func payloadString(p map[string]any, key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

// payloadFloat tolerates the numeric types JSON decoding and callers
// actually produce.
func payloadFloat(p map[string]any, key string) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
