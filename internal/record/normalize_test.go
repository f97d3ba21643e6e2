package record

import (
	"encoding/json"
	"testing"
)

func fieldsOf(pairs ...[2]any) *Fields {
	f := NewFields()
	for _, p := range pairs {
		f.Set(p[0].(string), p[1])
	}
	return f
}

func TestNormalizeAliasResolution(t *testing.T) {
	tests := []struct {
		name string
		raw  Raw
		want Project
	}{
		{
			name: "canonical column names",
			raw: Raw{ID: "recABC", Fields: fieldsOf(
				[2]any{"Project Name", "Acme Solar"},
				[2]any{"Phase", "Operating"},
				[2]any{"Address", "123 Main St"},
				[2]any{"Latitude", 40.1},
				[2]any{"Longitude", -75.2},
				[2]any{"Last Modified", "2024-01-02T03:04:05.000Z"},
			)},
			want: Project{ID: "recABC", Name: "Acme Solar", Phase: "Operating", Address: "123 Main St",
				Lat: f64(40.1), Lng: f64(-75.2), LastModified: "2024-01-02T03:04:05.000Z"},
		},
		{
			name: "fallback aliases, case-insensitive and trimmed",
			raw: Raw{ID: "rec2", Fields: fieldsOf(
				[2]any{" name ", "Beta Wind"},
				[2]any{"project phase", "Construction"},
				[2]any{"SITE ADDRESS", "9 Oak Ave"},
			)},
			want: Project{ID: "rec2", Name: "Beta Wind", Phase: "Construction", Address: "9 Oak Ave"},
		},
		{
			name: "string coordinates parse",
			raw: Raw{ID: "rec3", Fields: fieldsOf(
				[2]any{"Lat", "40.5"},
				[2]any{"Lng", "-74.9"},
			)},
			want: Project{ID: "rec3", Lat: f64(40.5), Lng: f64(-74.9)},
		},
		{
			name: "non-numeric coordinate degrades to nil, not an error",
			raw: Raw{ID: "rec4", Fields: fieldsOf(
				[2]any{"Latitude", "pending"},
				[2]any{"Longitude", "-74.9"},
			)},
			want: Project{ID: "rec4"},
		},
		{
			name: "one-sided coordinate is cleared",
			raw: Raw{ID: "rec5", Fields: fieldsOf(
				[2]any{"Latitude", 40.0},
			)},
			want: Project{ID: "rec5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.raw)
			if got.ID != tt.want.ID || got.Name != tt.want.Name || got.Phase != tt.want.Phase ||
				got.Address != tt.want.Address || got.LastModified != tt.want.LastModified {
				t.Errorf("Normalize = %+v, want %+v", got, tt.want)
			}
			if !floatEq(got.Lat, tt.want.Lat) || !floatEq(got.Lng, tt.want.Lng) {
				t.Errorf("coords = (%v, %v), want (%v, %v)", deref(got.Lat), deref(got.Lng), deref(tt.want.Lat), deref(tt.want.Lng))
			}
		})
	}
}

func TestNormalizeDegradesToEmpty(t *testing.T) {
	// No recognized alias for any field: every canonical attribute is its
	// absent sentinel and normalization must not panic.
	raw := Raw{Fields: fieldsOf(
		[2]any{"Unrelated", "value"},
		[2]any{"Budget", 12000},
	)}
	got := Normalize(raw)

	if got.Name != "" || got.Phase != "" || got.Address != "" || got.LastModified != "" {
		t.Errorf("expected empty sentinels, got %+v", got)
	}
	if got.Lat != nil || got.Lng != nil {
		t.Errorf("expected nil coordinates, got (%v, %v)", got.Lat, got.Lng)
	}
	if got.ID == "" {
		t.Error("expected a content-derived id")
	}
}

func TestNormalizeNilFields(t *testing.T) {
	got := Normalize(Raw{ID: "rec9"})
	if got.ID != "rec9" || got.Name != "" {
		t.Errorf("Normalize(nil fields) = %+v", got)
	}
}

func TestNormalizeIDPrecedence(t *testing.T) {
	// Native id wins.
	p := Normalize(Raw{ID: "recNative", Fields: fieldsOf([2]any{"Record ID", "XYZ"})})
	if p.ID != "recNative" {
		t.Errorf("native id: got %s", p.ID)
	}

	// Record ID column next.
	p = Normalize(Raw{Fields: fieldsOf([2]any{"Record ID", "XYZ"}, [2]any{"Project Name", "A"})})
	if p.ID != "rec_XYZ" {
		t.Errorf("record id column: got %s", p.ID)
	}

	// Content hash last; re-ingesting the same logical record never creates
	// a duplicate id.
	p1 := Normalize(Raw{Fields: fieldsOf([2]any{"Project Name", "A"}, [2]any{"Address", "1 St"})})
	p2 := Normalize(Raw{Fields: fieldsOf([2]any{"Project Name", "A"}, [2]any{"Address", "1 St"})})
	if p1.ID != p2.ID {
		t.Errorf("content ids differ: %s != %s", p1.ID, p2.ID)
	}
}

func TestFieldsJSONOrderPreserved(t *testing.T) {
	f := fieldsOf(
		[2]any{"Zeta", "1"},
		[2]any{"Alpha", "2"},
		[2]any{"Mid", "3"},
	)
	b, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"Zeta":"1","Alpha":"2","Mid":"3"}`
	if string(b) != want {
		t.Errorf("ordered marshal = %s, want %s", b, want)
	}

	back := NewFields()
	if err := json.Unmarshal(b, back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var keys []string
	for pair := back.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	if len(keys) != 3 || keys[0] != "Zeta" || keys[1] != "Alpha" || keys[2] != "Mid" {
		t.Errorf("unmarshal order = %v", keys)
	}
}

func f64(v float64) *float64 { return &v }

func floatEq(a, b *float64) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func deref(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
