package reading

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/relvacode/iso8601"
)

// Event is one live message pushed by the relay.
type Event struct {
	DeviceID    string  `json:"DeviceId"`
	MessageDate string  `json:"MessageDate"`
	Latitude    Coord   `json:"Latitude"`
	Longitude   Coord   `json:"Longitude"`
	IotData     Payload `json:"IotData"`
}

// Payload carries the sensor values of an event. Older firmware reports
// soil moisture as plantMoisture.
type Payload struct {
	Temperature   Value `json:"temperature"`
	Humidity      Value `json:"humidity"`
	Moisture      Value `json:"moisture"`
	PlantMoisture Value `json:"plantMoisture"`
}

// SoilMoisture returns moisture, falling back to plantMoisture.
func (p Payload) SoilMoisture() Value {
	if p.Moisture.Valid {
		return p.Moisture
	}
	return p.PlantMoisture
}

// Coord is a GPS coordinate as sent by the relay, either a JSON string or a
// number. The raw text is kept so invalid coordinates can be logged.
type Coord string

// UnmarshalJSON keeps the raw text of strings and numbers.
func (c *Coord) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*c = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*c = Coord(strings.TrimSpace(str))
		return nil
	}
	*c = Coord(s)
	return nil
}

// Present reports whether the coordinate field carried anything.
func (c Coord) Present() bool {
	return c != ""
}

// Float parses the coordinate.
func (c Coord) Float() (float64, error) {
	return strconv.ParseFloat(string(c), 64)
}

// DecodeEvent parses one JSON message.
func DecodeEvent(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	ev.DeviceID = strings.TrimSpace(ev.DeviceID)
	ev.MessageDate = strings.TrimSpace(ev.MessageDate)
	return ev, nil
}

// Reading converts the event payload into a sample. An unparsable
// MessageDate is kept verbatim as the label with a zero time.
func (ev Event) Reading() Reading {
	r := Reading{
		Label:       ev.MessageDate,
		Temperature: ev.IotData.Temperature,
		Humidity:    ev.IotData.Humidity,
		Moisture:    ev.IotData.SoilMoisture(),
	}
	if t := ParseTime(ev.MessageDate); !t.IsZero() {
		r.Time = t
		r.Label = FormatTime(t)
	}
	return r
}

// ParseTime parses an ISO 8601 timestamp, or a space separated
// "2006-01-02 15:04:05" one in local time. It returns the zero time on
// failure.
func ParseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if t, err := iso8601.ParseString(s); err == nil {
		return t
	}
	if t, err := time.ParseInLocation(time.DateTime, s, time.Local); err == nil {
		return t
	}
	return time.Time{}
}
