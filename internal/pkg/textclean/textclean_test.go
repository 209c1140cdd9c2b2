package textclean

import (
	"testing"
)

func TestClean(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"timestamp", "how to fix a bike 4:22", "how to fix a bike"},
		{"price", "wireless earbuds $29.99 deal", "wireless earbuds deal"},
		{"youtube marker", "best workout YouTube · Fitness Channel", "best workout"},
		{"url", "buy shoes https://example.com/shop", "buy shoes"},
		{"views and age", "unboxing 12K+ views · Jan 3 2024", "unboxing"},
		{"relative age", "posted 3 days ago", "posted"},
		{"special chars", `coffee "maker" · deluxe|model`, "coffee maker deluxemodel"},
		{"whitespace collapse", "  too   many    spaces  ", "too many spaces"},
		{"rating", "blender 4.5(2k) best seller", "blender  best seller"},
		{"short fragment drops", "ab", ""},
		{"empty", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Clean(tc.in); got != tc.want {
				t.Errorf("Clean(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestIsValidKeyword(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"best running shoes", true},
		{"abc", false},     // too short
		{"1234", false},    // numeric
		{"12.34", false},   // numeric with dot
		{"see more results", false},
		{"shop now at target", false},
		{"marathon training plan", true},
	}

	for _, tc := range cases {
		if got := IsValidKeyword(tc.in); got != tc.want {
			t.Errorf("IsValidKeyword(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestDedupe(t *testing.T) {
	in := []string{"Coffee Maker", "coffee maker", "Espresso", "COFFEE MAKER", "espresso machine"}
	got := Dedupe(in)

	want := []string{"Coffee Maker", "Espresso", "espresso machine"}
	if len(got) != len(want) {
		t.Fatalf("Dedupe returned %d items, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Dedupe[%d] = %q, want %q (order must be preserved)", i, got[i], want[i])
		}
	}
}

func TestDedupeExact(t *testing.T) {
	in := []string{"What is a coffee maker", "what is a coffee maker", "What is a coffee maker", "Espresso"}
	got := DedupeExact(in)

	// Casing variants survive; only byte-identical repeats collapse.
	want := []string{"What is a coffee maker", "what is a coffee maker", "Espresso"}
	if len(got) != len(want) {
		t.Fatalf("DedupeExact returned %d items, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("DedupeExact[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSlug(t *testing.T) {
	if got := Slug("Best Running Shoes"); got != "best_running_shoes" {
		t.Errorf("Slug = %q", got)
	}

	long := "a very long keyword that keeps going and going and going far past fifty characters"
	if got := Slug(long); len(got) != 50 {
		t.Errorf("Slug should truncate to 50 chars, got %d", len(got))
	}
}
