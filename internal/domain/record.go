package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// RecordID is an opaque backend order identifier.
// It remembers whether the backend sent it as a JSON number or a JSON string
// so it can be echoed back in the same form.
type RecordID struct {
	value   string
	numeric bool
}

// NewRecordID creates a string-kind identifier
func NewRecordID(value string) RecordID {
	return RecordID{value: value}
}

// NumericRecordID creates a number-kind identifier
func NumericRecordID(n int64) RecordID {
	return RecordID{value: strconv.FormatInt(n, 10), numeric: true}
}

func (id RecordID) String() string {
	return id.value
}

// IsZero reports whether the identifier is empty
func (id RecordID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON encodes the identifier in its original JSON kind
func (id RecordID) MarshalJSON() ([]byte, error) {
	if id.numeric {
		return []byte(id.value), nil
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON accepts both JSON numbers and JSON strings
func (id *RecordID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = RecordID{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = RecordID{value: s}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid record id %s: %w", string(data), err)
	}
	*id = RecordID{value: n.String(), numeric: true}
	return nil
}

func (id RecordID) less(other RecordID) bool {
	if id.numeric && other.numeric && len(id.value) != len(other.value) {
		return len(id.value) < len(other.value)
	}
	if id.value != other.value {
		return id.value < other.value
	}
	return id.numeric && !other.numeric
}

// IDSet is a set of record identifiers keyed by value, so the number 5 and
// the string "5" are one member; the first kind added is kept.
// The zero value is not usable; use NewIDSet.
type IDSet map[string]RecordID

// NewIDSet creates a set holding the given identifiers
func NewIDSet(ids ...RecordID) IDSet {
	set := make(IDSet, len(ids))
	for _, id := range ids {
		set.Add(id)
	}
	return set
}

// Add inserts an identifier; empty identifiers are ignored
func (s IDSet) Add(id RecordID) {
	if id.IsZero() {
		return
	}
	if _, ok := s[id.value]; ok {
		return
	}
	s[id.value] = id
}

// Contains reports whether an identifier with the same value is in the set
func (s IDSet) Contains(id RecordID) bool {
	_, ok := s[id.value]
	return ok
}

// Sorted returns the identifiers in a deterministic order
func (s IDSet) Sorted() []RecordID {
	ids := make([]RecordID, 0, len(s))
	for _, id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].less(ids[j]) })
	return ids
}

// Status is an order state as reported by the backend
type Status int

// StatusUnknown marks a status that is missing or not numeric. It is never
// part of a configured set.
const StatusUnknown Status = -1

// UnmarshalJSON accepts numbers and numeric strings. Anything else decodes
// as StatusUnknown so one bad record does not spoil its page.
func (s *Status) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		*s = StatusUnknown
		return nil
	}
	*s = Status(n)
	return nil
}

// StatusSet is a closed set of statuses configured per deployment
type StatusSet map[Status]struct{}

// NewStatusSet creates a set holding the given statuses
func NewStatusSet(statuses ...Status) StatusSet {
	set := make(StatusSet, len(statuses))
	for _, st := range statuses {
		set[st] = struct{}{}
	}
	return set
}

// ParseStatusSet parses a comma separated list such as "0,1,2"
func ParseStatusSet(value string) (StatusSet, error) {
	set := make(StatusSet)
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid status %q", part)
		}
		set[Status(n)] = struct{}{}
	}
	return set, nil
}

// Contains reports whether st is in the set
func (s StatusSet) Contains(st Status) bool {
	_, ok := s[st]
	return ok
}

// SubsetOf reports whether every status in s is also in other
func (s StatusSet) SubsetOf(other StatusSet) bool {
	for st := range s {
		if !other.Contains(st) {
			return false
		}
	}
	return true
}

// Slice returns the statuses in ascending order
func (s StatusSet) Slice() []Status {
	out := make([]Status, 0, len(s))
	for st := range s {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s StatusSet) String() string {
	parts := make([]string, 0, len(s))
	for _, st := range s.Slice() {
		parts = append(parts, strconv.Itoa(int(st)))
	}
	return strings.Join(parts, ",")
}

// Record is one order as seen on a list page
type Record struct {
	ID     RecordID `json:"id"`
	Status Status   `json:"status"`
}

// UnmarshalJSON decodes a record; a missing status is StatusUnknown, not 0
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	rec := plain{Status: StatusUnknown}
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	*r = Record(rec)
	return nil
}

// Page is one page of the backend's order listing
type Page struct {
	Number     int      `json:"current"`
	Size       int      `json:"size"`
	TotalPages int      `json:"pages"`
	Total      int      `json:"total"`
	Records    []Record `json:"records"`
}

// Count returns the server reported record count, falling back to the page length
func (p *Page) Count() int {
	if p.Total > 0 || len(p.Records) == 0 {
		return p.Total
	}
	return len(p.Records)
}

// ListQuery describes one request to the listing endpoint
type ListQuery struct {
	Page     int
	Size     int
	Statuses []Status
	Since    time.Time
	Until    time.Time
}
