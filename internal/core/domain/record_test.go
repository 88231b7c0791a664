package domain

import "testing"

func TestFindResultPrefersIDOverTitle(t *testing.T) {
	rec := SearchRecord{Results: map[Source][]ScoredResult{
		SourceDatabase: {{ID: "database:1", Title: "web:2"}},
		SourceWeb:      {{ID: "web:2", Title: "Reflow profile"}},
	}}

	got, ok := rec.FindResult("web:2")
	if !ok || got.ID != "web:2" {
		t.Fatalf("expected id match, got %+v ok=%v", got, ok)
	}
	got, ok = rec.FindResult("Reflow profile")
	if !ok || got.ID != "web:2" {
		t.Fatalf("expected title fallback, got %+v ok=%v", got, ok)
	}
	if _, ok := rec.FindResult("missing"); ok {
		t.Fatalf("expected miss")
	}
}

func TestPageRequestNormalize(t *testing.T) {
	p, err := PageRequest{}.Normalize()
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if p.Page != 1 || p.Limit != DefaultPageLimit {
		t.Fatalf("unexpected defaults %+v", p)
	}
	if _, err := (PageRequest{Page: 1, Limit: 101}).Normalize(); !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for limit 101, got %v", err)
	}
	if _, err := (PageRequest{Page: -1, Limit: 10}).Normalize(); !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative page, got %v", err)
	}
}

func TestNewPageInfo(t *testing.T) {
	info := NewPageInfo(PageRequest{Page: 2, Limit: 10}, 25)
	if !info.HasNext || !info.HasPrev {
		t.Fatalf("expected both directions, got %+v", info)
	}
	info = NewPageInfo(PageRequest{Page: 3, Limit: 10}, 25)
	if info.HasNext {
		t.Fatalf("last page must not have next, got %+v", info)
	}
}

func TestSaveResultRequestNormalizeRejectsLongNotes(t *testing.T) {
	long := make([]byte, 501)
	for i := range long {
		long[i] = 'a'
	}
	_, err := SaveResultRequest{ResultID: "x", Notes: string(long)}.Normalize()
	if !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
