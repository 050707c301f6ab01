package roominfo

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"roomfree/internal/model"
)

// variableSeating is the catalog's seating value for movable furniture.
const variableSeating = "variabel"

type roomJSON struct {
	Area     string    `json:"area"`
	Building string    `json:"building"`
	Floor    string    `json:"floor"`
	Room     string    `json:"room"`
	Seating  string    `json:"seating"`
	Seats    seatCount `json:"seats"`
	Type     string    `json:"type"`
}

// seatCount accepts the seat count as either a JSON string or number.
type seatCount string

func (s *seatCount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*s = ""
	case len(b) > 0 && b[0] == '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = seatCount(v)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("seats: %w", err)
		}
		*s = seatCount(n.String())
	}
	return nil
}

func (r roomJSON) room() model.Room {
	return model.Room{
		Area:            r.Area,
		Building:        r.Building,
		Floor:           r.Floor,
		Code:            r.Room,
		VariableSeating: r.Seating == variableSeating,
		Seats:           string(r.Seats),
		Type:            r.Type,
	}
}

// ParseCatalog decodes the room list returned by the catalog endpoint.
func ParseCatalog(data []byte) ([]model.Room, error) {
	var raw []roomJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	rooms := make([]model.Room, 0, len(raw))
	for _, r := range raw {
		if r.Building == "" || r.Room == "" {
			continue
		}
		rooms = append(rooms, r.room())
	}
	return rooms, nil
}

var csvColumns = []string{"area", "building", "floor", "room", "seating", "seats", "type"}

// ReadCSV reads a catalog exported as CSV with the header
// area,building,floor,room,seating,seats,type. Columns may appear in any
// order. A UTF-8 or UTF-16 byte order mark is honored.
func ReadCSV(r io.Reader) ([]model.Room, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	cr := csv.NewReader(transform.NewReader(r, dec))
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read catalog header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range []string{"building", "floor", "room"} {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("catalog header lacks %q column", name)
		}
	}
	field := func(rec []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var rooms []model.Room
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		raw := roomJSON{}
		for _, name := range csvColumns {
			v := field(rec, name)
			switch name {
			case "area":
				raw.Area = v
			case "building":
				raw.Building = v
			case "floor":
				raw.Floor = v
			case "room":
				raw.Room = v
			case "seating":
				raw.Seating = v
			case "seats":
				raw.Seats = seatCount(v)
			case "type":
				raw.Type = v
			}
		}
		if raw.Building == "" || raw.Room == "" {
			continue
		}
		rooms = append(rooms, raw.room())
	}
	return rooms, nil
}
