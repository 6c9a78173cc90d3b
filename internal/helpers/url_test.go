package helpers

import "testing"

func TestNormalizeLinkStripsTracking(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://a.com/x?utm_source=y", "https://a.com/x"},
		{"https://a.com/x?gclid=123&id=7", "https://a.com/x?id=7"},
		{"https://A.COM/x#section", "https://a.com/x"},
		{"https://a.com/x?fbclid=z&igshid=q", "https://a.com/x"},
		{"a.com/x", "https://a.com/x"},
	}
	for _, tc := range cases {
		got, err := NormalizeLink(tc.in)
		if err != nil {
			t.Fatalf("NormalizeLink(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("NormalizeLink(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeLinkSameIdentity(t *testing.T) {
	a, err := NormalizeLink("https://a.com/x?utm_source=y")
	if err != nil {
		t.Fatal(err)
	}
	b, err := NormalizeLink("https://a.com/x")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("expected same identity, got %q vs %q", a, b)
	}
}

func TestNormalizeLinkErrors(t *testing.T) {
	if _, err := NormalizeLink(""); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := NormalizeLink("   "); err == nil {
		t.Fatal("expected error for blank url")
	}
}

func TestLinkKeyNeverFails(t *testing.T) {
	if got := LinkKey("  NOT a url  "); got == "" {
		t.Fatal("LinkKey should fall back to the raw string")
	}
	if LinkKey("https://A.com/X") != LinkKey("https://a.com/X") {
		t.Fatal("LinkKey should be case-insensitive on host")
	}
}

func TestHost(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://www.example.com/path", "example.com"},
		{"https://news.bbc.co.uk/a", "news.bbc.co.uk"},
		{"example.com/x", "example.com"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Host(tc.in); got != tc.want {
			t.Fatalf("Host(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
