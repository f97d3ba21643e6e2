package record

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Fields is an insertion-ordered bag of upstream attribute name -> raw value.
// Order matters: the UI renders extra attributes in the order the upstream
// source reported them.
type Fields = orderedmap.OrderedMap[string, any]

// NewFields returns an empty ordered field bag.
func NewFields() *Fields {
	return orderedmap.New[string, any]()
}

// Raw is a single record as fetched from an upstream source, before
// normalization. ID is the upstream-native identifier and may be empty
// (CSV exports without a Record ID column).
type Raw struct {
	ID     string
	Fields *Fields
}

// Project is the canonical record shape served to the map UI.
//
// Name, Phase and Address use "" as the absent sentinel so sorting and
// filtering stay stable. Lat and Lng are either both set or both nil; a
// half-geocoded record is normalized back to "no coordinates".
type Project struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Phase        string   `json:"phase"`
	Address      string   `json:"address"`
	Lat          *float64 `json:"lat"`
	Lng          *float64 `json:"lng"`
	LastModified string   `json:"lastModified,omitempty"`
	AllFields    *Fields  `json:"allFields,omitempty"`
}

// Geocoded reports whether the record carries a usable coordinate pair.
func (p Project) Geocoded() bool {
	return p.Lat != nil && p.Lng != nil
}

// ContentID derives a stable identifier from record content, used when the
// upstream carries no native id. Re-ingesting the same logical record yields
// the same id.
func ContentID(name, address string) string {
	return "csv_" + sha1Hex(name+"|"+address)
}

// Fingerprint digests the identity membership of a record set for a named
// view. It is order-independent over the input and changes whenever any id
// is added, removed or renamed.
func Fingerprint(records []Project, viewName string) string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	sort.Strings(ids)
	return sha1Hex(viewName + ";" + strings.Join(ids, ","))
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
