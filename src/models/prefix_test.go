package models

import "testing"

func TestPrefixType_Valid(t *testing.T) {
	for _, p := range []PrefixType{PrefixNone, PrefixHTTP, PrefixTLS, PrefixTLSData, PrefixDNS, PrefixSSH} {
		if !p.Valid() {
			t.Errorf("expected %q to be valid", p)
		}
	}
	if PrefixType("quic").Valid() {
		t.Error("expected unknown prefix to be invalid")
	}
}

func TestLookupPrefix(t *testing.T) {
	info, ok := LookupPrefix(PrefixHTTP)
	if !ok {
		t.Fatal("expected http prefix in catalog")
	}
	if info.Bytes != "POST " {
		t.Errorf("expected http bytes 'POST ', got %q", info.Bytes)
	}
	if len(info.RecommendedPorts) != 2 || info.RecommendedPorts[0] != 80 {
		t.Errorf("unexpected recommended ports: %v", info.RecommendedPorts)
	}

	if _, ok := LookupPrefix(PrefixNone); ok {
		t.Error("empty prefix must not resolve to a catalog entry")
	}
}

func TestPrefixCatalog_Order(t *testing.T) {
	catalog := PrefixCatalog()
	if len(catalog) != 5 {
		t.Fatalf("expected 5 catalog entries, got %d", len(catalog))
	}

	want := []PrefixType{PrefixHTTP, PrefixTLS, PrefixTLSData, PrefixDNS, PrefixSSH}
	for i, entry := range catalog {
		if entry.Type != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], entry.Type)
		}
		if entry.Description == "" {
			t.Errorf("%q: expected a description", entry.Type)
		}
		if len(entry.RecommendedPorts) == 0 {
			t.Errorf("%q: expected recommended ports", entry.Type)
		}
	}
}
