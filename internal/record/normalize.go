package record

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Ordered alias lists for resolving loosely-named upstream columns onto
// canonical attributes. First case-insensitive, whitespace-trimmed match wins.
var (
	nameAliases    = []string{"Project Name", "Name", "Project"}
	phaseAliases   = []string{"Phase", "Project Phase"}
	addressAliases = []string{"Address", "Site Address", "Project Address", "Location", "Street Address"}
	latAliases     = []string{"Latitude", "Lat", "LAT", "Y", "Y (lat)"}
	lngAliases     = []string{"Longitude", "Lng", "LONG", "X", "X (lng)"}
	lastModAliases = []string{"Last Modified", "Last modified", "LastModified", "Last Modified Time"}
	recordIDAlias  = []string{"Record ID"}
)

// Normalize maps a raw upstream record onto the canonical project shape.
// It never fails: a sparse or malformed record degrades to a mostly-empty
// project instead of aborting the batch.
//
// Identity precedence: upstream-native id, then a "Record ID" column
// (prefixed rec_), then a content hash of name+address.
func Normalize(raw Raw) Project {
	p := Project{
		Name:         pickString(raw.Fields, nameAliases),
		Phase:        pickString(raw.Fields, phaseAliases),
		Address:      pickString(raw.Fields, addressAliases),
		Lat:          pickFloat(raw.Fields, latAliases),
		Lng:          pickFloat(raw.Fields, lngAliases),
		LastModified: pickString(raw.Fields, lastModAliases),
		AllFields:    raw.Fields,
	}

	// A record with only one coordinate is not a geocodable point; treat it
	// as not geocoded at all so the UI falls back to address geocoding.
	if (p.Lat == nil) != (p.Lng == nil) {
		p.Lat, p.Lng = nil, nil
	}

	switch {
	case raw.ID != "":
		p.ID = raw.ID
	default:
		if rid := pickString(raw.Fields, recordIDAlias); rid != "" {
			p.ID = "rec_" + rid
		} else {
			p.ID = ContentID(p.Name, p.Address)
		}
	}
	return p
}

// pick returns the value for the first alias present in fields, matching
// exact key first, then case-insensitive with surrounding whitespace trimmed.
func pick(fields *Fields, aliases []string) (any, bool) {
	if fields == nil {
		return nil, false
	}
	for _, alias := range aliases {
		if v, ok := fields.Get(alias); ok && v != nil {
			return v, true
		}
		want := strings.ToLower(strings.TrimSpace(alias))
		for pair := fields.Oldest(); pair != nil; pair = pair.Next() {
			if strings.ToLower(strings.TrimSpace(pair.Key)) == want && pair.Value != nil {
				return pair.Value, true
			}
		}
	}
	return nil, false
}

func pickString(fields *Fields, aliases []string) string {
	v, ok := pick(fields, aliases)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

// pickFloat resolves a coordinate attribute. Non-numeric values normalize to
// nil rather than failing the record.
func pickFloat(fields *Fields, aliases []string) *float64 {
	v, ok := pick(fields, aliases)
	if !ok {
		return nil
	}
	switch n := v.(type) {
	case float64:
		return &n
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return &f
		}
	case int:
		f := float64(n)
		return &f
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return &f
		}
	}
	return nil
}
