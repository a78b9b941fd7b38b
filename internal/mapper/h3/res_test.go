package h3mapper

import (
	"testing"

	h3 "github.com/uber/h3-go/v4"
)

func TestToParent_ContainsChild(t *testing.T) {
	m := New()

	baseRes := 8
	cell, err := h3.LatLngToCell(h3.LatLng{Lat: 59.3293, Lng: 18.0686}, baseRes)
	if err != nil {
		t.Fatalf("LatLngToCell: %v", err)
	}
	parent, err := m.ToParent(cell.String(), 5)
	if err != nil {
		t.Fatalf("ToParent: %v", err)
	}
	want, err := h3.LatLngToCell(h3.LatLng{Lat: 59.3293, Lng: 18.0686}, 5)
	if err != nil {
		t.Fatalf("LatLngToCell: %v", err)
	}
	if parent != want.String() {
		t.Fatalf("parent=%s want %s", parent, want.String())
	}
}

func TestToParent_SameResAndBadTransitions(t *testing.T) {
	m := New()
	cell, err := h3.LatLngToCell(h3.LatLng{Lat: 57.7089, Lng: 11.9746}, 9)
	if err != nil {
		t.Fatalf("LatLngToCell: %v", err)
	}
	cellStr := cell.String()

	p, err := m.ToParent(cellStr, 9)
	if err != nil || p != cellStr {
		t.Fatalf("same-res parent should be identity, got %q %v", p, err)
	}
	if _, err := m.ToParent(cellStr, 10); err == nil {
		t.Fatalf("expected error for parentRes > current res")
	}
	if _, err := m.ToParent("not-a-cell", 5); err == nil {
		t.Fatalf("expected error for garbage cell")
	}
}
