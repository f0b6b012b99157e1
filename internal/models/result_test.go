package models

import "testing"

func TestFileTypeOf(t *testing.T) {
	cases := map[string]string{
		"report.CSV":       "csv",
		"deck.pptx":        "pptx",
		"photo.JPEG":       "jpeg",
		"archive.tar.gz":   "gz",
		"no-extension":     "",
		"trailing-dot.":    "",
		"/path/to/doc.pdf": "pdf",
	}
	for name, want := range cases {
		if got := FileTypeOf(name); got != want {
			t.Errorf("FileTypeOf(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestPIICountMapTotal(t *testing.T) {
	m := PIICountMap{"emails": 3, "phones": 2, "names": 0}
	if got := m.Total(); got != 5 {
		t.Errorf("Total() = %d, want 5", got)
	}
	var empty PIICountMap
	if got := empty.Total(); got != 0 {
		t.Errorf("nil map Total() = %d, want 0", got)
	}
}

func TestPIICountMapScanFromColumn(t *testing.T) {
	var m PIICountMap
	if err := m.Scan([]byte(`{"emails":3}`)); err != nil {
		t.Fatalf("Scan bytes: %v", err)
	}
	if m["emails"] != 3 {
		t.Errorf("expected emails=3, got %d", m["emails"])
	}

	var fromString PIICountMap
	if err := fromString.Scan(`{"phones":1}`); err != nil {
		t.Fatalf("Scan string: %v", err)
	}
	if fromString["phones"] != 1 {
		t.Errorf("expected phones=1, got %d", fromString["phones"])
	}

	var fromNil PIICountMap
	if err := fromNil.Scan(nil); err != nil {
		t.Fatalf("Scan nil: %v", err)
	}
	if len(fromNil) != 0 {
		t.Errorf("expected empty map from NULL, got %v", fromNil)
	}
}
