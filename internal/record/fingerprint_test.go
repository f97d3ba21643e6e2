package record

import (
	"math/rand"
	"testing"
)

func projectsWithIDs(ids ...string) []Project {
	out := make([]Project, len(ids))
	for i, id := range ids {
		out[i] = Project{ID: id}
	}
	return out
}

func TestFingerprintOrderIndependent(t *testing.T) {
	ids := []string{"rec_a", "rec_b", "rec_c", "csv_9f2", "rec_d", "rec_e"}
	want := Fingerprint(projectsWithIDs(ids...), "Grid view")

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([]string(nil), ids...)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		if got := Fingerprint(projectsWithIDs(shuffled...), "Grid view"); got != want {
			t.Fatalf("fingerprint changed under shuffle %v: %s != %s", shuffled, got, want)
		}
	}
}

func TestFingerprintMembershipSensitive(t *testing.T) {
	base := Fingerprint(projectsWithIDs("a", "b", "c"), "v")

	cases := map[string][]string{
		"added":   {"a", "b", "c", "d"},
		"removed": {"a", "b"},
		"renamed": {"a", "b", "x"},
	}
	for name, ids := range cases {
		if got := Fingerprint(projectsWithIDs(ids...), "v"); got == base {
			t.Errorf("%s: fingerprint did not change for %v", name, ids)
		}
	}
}

func TestFingerprintViewNameSensitive(t *testing.T) {
	recs := projectsWithIDs("a", "b")
	if Fingerprint(recs, "view one") == Fingerprint(recs, "view two") {
		t.Error("fingerprints for different views should differ")
	}
}

func TestFingerprintEmptySet(t *testing.T) {
	if Fingerprint(nil, "v") != Fingerprint([]Project{}, "v") {
		t.Error("nil and empty record sets should fingerprint identically")
	}
}

func TestContentIDStable(t *testing.T) {
	a := ContentID("Acme Solar", "123 Main St")
	b := ContentID("Acme Solar", "123 Main St")
	if a != b {
		t.Errorf("ContentID not deterministic: %s != %s", a, b)
	}
	if a == ContentID("Acme Solar", "124 Main St") {
		t.Error("ContentID should change with address")
	}
}
