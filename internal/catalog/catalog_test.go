package catalog

import (
	"encoding/json"
	"reflect"
	"testing"
)

var testBranches = []string{"CSE", "ECE", "EEE", "Mech", "Civil"}

func seeded() *Catalog {
	c := New()
	c.Add("CSE", "4", "DBMS", Material{
		Title:    "DBMS Unit 1 Notes",
		FileID:   "file-dbms-1",
		Type:     "document",
		Keywords: []string{"normalization", "sql"},
	})
	c.Add("CSE", "4", "DBMS", Material{
		Title:    "SQL Practice Questions",
		FileID:   "file-dbms-2",
		Type:     "document",
		Keywords: []string{"queries", "joins"},
	})
	c.Add("CSE", "3", "Data Structures", Material{
		Title:    "Trees and Graphs",
		FileID:   "file-ds-1",
		Type:     "document",
		Keywords: []string{"bst", "traversal"},
	})
	c.Add("ECE", "5", "Signals", Material{
		Title:    "Fourier Transforms",
		FileID:   "file-sig-1",
		Type:     "document",
		Keywords: []string{"dft", "fft"},
	})
	return c
}

func TestBrowseTreeOrdering(t *testing.T) {
	c := seeded()

	if got, want := c.Branches(), []string{"CSE", "ECE"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Branches() = %v, want %v", got, want)
	}
	if got, want := c.Semesters("CSE"), []string{"3", "4"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Semesters(CSE) = %v, want %v", got, want)
	}
	if got := c.Subjects("CSE", "4"); len(got) != 1 || got[0] != "DBMS" {
		t.Fatalf("Subjects(CSE,4) = %v", got)
	}
	if got := c.Materials("CSE", "4", "DBMS"); len(got) != 2 {
		t.Fatalf("Materials(CSE,4,DBMS) = %d entries, want 2", len(got))
	}
	if got := c.Semesters("Mech"); got != nil {
		t.Fatalf("Semesters(Mech) = %v, want nil", got)
	}
}

func TestSemesterNumericOrder(t *testing.T) {
	c := New()
	for _, sem := range []string{"10", "2", "1"} {
		c.Add("CSE", sem, "Subj", Material{Title: "x", FileID: "f"})
	}
	if got, want := c.Semesters("CSE"), []string{"1", "2", "10"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Semesters = %v, want %v", got, want)
	}
}

func TestGetByRef(t *testing.T) {
	c := seeded()

	ref := Ref{Branch: "CSE", Semester: "4", Subject: "DBMS", Index: 1}
	m, ok := c.Get(ref)
	if !ok || m.FileID != "file-dbms-2" {
		t.Fatalf("Get(%v) = %+v, %v", ref, m, ok)
	}

	for _, bad := range []Ref{
		{Branch: "CSE", Semester: "4", Subject: "DBMS", Index: 5},
		{Branch: "CSE", Semester: "9", Subject: "DBMS", Index: 0},
		{Branch: "Mech", Semester: "4", Subject: "DBMS", Index: 0},
	} {
		if _, ok := c.Get(bad); ok {
			t.Fatalf("Get(%v) unexpectedly found a material", bad)
		}
	}
}

func TestRefRoundTrip(t *testing.T) {
	ref := Ref{Branch: "CSE", Semester: "4", Subject: "DBMS", Index: 2}
	parsed, err := ParseRef(ref.String())
	if err != nil {
		t.Fatalf("ParseRef(%q): %v", ref.String(), err)
	}
	if parsed != ref {
		t.Fatalf("round trip = %+v, want %+v", parsed, ref)
	}

	for _, bad := range []string{"", "CSE:4:DBMS", "CSE:4:DBMS:x", "CSE:4:DBMS:-1", "a:b:c:d:e"} {
		if _, err := ParseRef(bad); err == nil {
			t.Fatalf("ParseRef(%q) accepted malformed ref", bad)
		}
	}
}

func TestAddReturnsSequentialRefs(t *testing.T) {
	c := New()
	r1 := c.Add("EEE", "2", "Circuits", Material{Title: "a", FileID: "f1"})
	r2 := c.Add("EEE", "2", "Circuits", Material{Title: "b", FileID: "f2"})
	if r1.Index != 0 || r2.Index != 1 {
		t.Fatalf("indices = %d, %d", r1.Index, r2.Index)
	}
	if m, _ := c.Get(r2); m.UploadedAt == "" {
		t.Fatal("Add did not stamp UploadedAt")
	}
}

func TestAddFiresPersist(t *testing.T) {
	var got []byte
	c := New(WithPersist(func(b []byte) { got = b }))
	c.Add("CSE", "1", "Maths", Material{Title: "Calculus", FileID: "f"})
	if got == nil {
		t.Fatal("persist hook did not fire")
	}
	var doc map[string]map[string]map[string]struct {
		Materials []Material `json:"materials"`
	}
	if err := json.Unmarshal(got, &doc); err != nil {
		t.Fatalf("persisted snapshot is not valid JSON: %v", err)
	}
	if len(doc["CSE"]["1"]["Maths"].Materials) != 1 {
		t.Fatalf("snapshot shape wrong: %s", got)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	c := seeded()
	data := c.Snapshot()

	fresh := New()
	fresh.Restore(data)

	wantBranches, wantMaterials := c.Count()
	gotBranches, gotMaterials := fresh.Count()
	if gotBranches != wantBranches || gotMaterials != wantMaterials {
		t.Fatalf("restored %d/%d, want %d/%d", gotBranches, gotMaterials, wantBranches, wantMaterials)
	}
	m, ok := fresh.Get(Ref{Branch: "ECE", Semester: "5", Subject: "Signals", Index: 0})
	if !ok || m.Title != "Fourier Transforms" {
		t.Fatalf("restored material = %+v, %v", m, ok)
	}
}

func TestRestoreCorruptDocumentStaysEmpty(t *testing.T) {
	c := New()
	c.Restore([]byte("{not json"))
	if b, m := c.Count(); b != 0 || m != 0 {
		t.Fatalf("corrupt restore populated catalog: %d branches, %d materials", b, m)
	}
}

func TestSearchMatchesTitleKeywordsSubject(t *testing.T) {
	c := seeded()

	if got := c.Search("fourier", 0); len(got) != 1 || got[0].Material.FileID != "file-sig-1" {
		t.Fatalf("title search = %+v", got)
	}
	if got := c.Search("TRAVERSAL", 0); len(got) != 1 || got[0].Material.FileID != "file-ds-1" {
		t.Fatalf("keyword search = %+v", got)
	}
	// Subject-name match pulls in every material under the subject.
	if got := c.Search("dbms", 0); len(got) != 2 {
		t.Fatalf("subject search returned %d results, want 2", len(got))
	}
	if got := c.Search("quantum", 0); got != nil {
		t.Fatalf("no-match search = %+v", got)
	}
	if got := c.Search("  ", 0); got != nil {
		t.Fatalf("blank search = %+v", got)
	}
}

func TestSearchHonorsLimit(t *testing.T) {
	c := seeded()
	if got := c.Search("dbms", 1); len(got) != 1 {
		t.Fatalf("limited search returned %d results", len(got))
	}
}

func TestSearchResultRefsResolve(t *testing.T) {
	c := seeded()
	for _, res := range c.Search("sql", 0) {
		m, ok := c.Get(res.Ref)
		if !ok || m.FileID != res.Material.FileID {
			t.Fatalf("ref %v does not resolve to matched material", res.Ref)
		}
	}
}

func TestParseUploadDetails(t *testing.T) {
	d, err := ParseUploadDetails("cse, 4, DBMS, Unit 1 Notes, Normalization, SQL", testBranches, 8)
	if err != nil {
		t.Fatalf("ParseUploadDetails: %v", err)
	}
	if d.Branch != "CSE" {
		t.Fatalf("branch not canonicalized: %q", d.Branch)
	}
	if d.Semester != "4" || d.Subject != "DBMS" || d.Title != "Unit 1 Notes" {
		t.Fatalf("parsed = %+v", d)
	}
	if !reflect.DeepEqual(d.Keywords, []string{"normalization", "sql"}) {
		t.Fatalf("keywords = %v, want lowercased", d.Keywords)
	}
}

func TestParseUploadDetailsRejects(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"too few fields", "CSE, 4, DBMS, Title"},
		{"unknown branch", "Arch, 4, DBMS, Title, kw"},
		{"semester not a number", "CSE, four, DBMS, Title, kw"},
		{"semester zero", "CSE, 0, DBMS, Title, kw"},
		{"semester too high", "CSE, 9, DBMS, Title, kw"},
		{"empty subject", "CSE, 4, , Title, kw"},
		{"subject with ref separator", "CSE, 4, CS: Theory, Title, kw"},
		{"empty title", "CSE, 4, DBMS, , kw"},
		{"empty keywords", "CSE, 4, DBMS, Title, , "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseUploadDetails(tc.text, testBranches, 8); err == nil {
				t.Fatalf("accepted %q", tc.text)
			}
		})
	}
}
