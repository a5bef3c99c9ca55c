package dedup

import (
	"reflect"
	"testing"

	"vea/internal/domain"
)

func entry(source, title, link string) domain.Entry {
	return domain.Entry{Source: source, Title: title, Link: link}
}

func TestDedupeFirstOccurrenceWins(t *testing.T) {
	in := []domain.Entry{
		entry("A", "Ransomware hits hospital", "https://example.com/l1"),
		entry("A", "Fortinet patch", "https://example.com/l2"),
		entry("B", "RANSOMWARE Hits Hospital Network", "https://example.com/l1"),
		entry("B", "Fortinet patch again", "https://example.com/l2"),
		entry("C", "Other", "https://example.com/l3"),
	}

	got := Dedupe(in)
	want := []domain.Entry{in[0], in[1], in[4]}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected result:\n got %+v\nwant %+v", got, want)
	}
}

func TestDedupeComparesLinksExactly(t *testing.T) {
	in := []domain.Entry{
		entry("A", "a", "https://example.com/l1"),
		entry("A", "b", "https://example.com/l1/"),
		entry("A", "c", "https://example.com/l1?utm=x"),
		entry("A", "d", "https://EXAMPLE.com/l1"),
	}

	if got := Dedupe(in); len(got) != len(in) {
		t.Fatalf("expected all %d variants to survive, got %d", len(in), len(got))
	}
}

func TestDedupeIsIdempotent(t *testing.T) {
	in := []domain.Entry{
		entry("A", "a", "l1"),
		entry("B", "b", "l1"),
		entry("B", "c", "l2"),
		entry("A", "d", "l2"),
		entry("A", "e", "l3"),
	}

	once := Dedupe(in)
	twice := Dedupe(once)

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("expected idempotence:\n once %+v\ntwice %+v", once, twice)
	}
}

func TestDedupeEmpty(t *testing.T) {
	got := Dedupe(nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}
