package store

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/chazu/tapevm/pkg/bytecode"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreTranslateCaches(t *testing.T) {
	s := openTestStore(t)
	src := []byte("++[>+<-]>. copies a cell")

	first, hit, err := s.Translate(src)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if hit {
		t.Error("first Translate should miss")
	}

	second, hit, err := s.Translate(src)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if !hit {
		t.Error("second Translate should hit")
	}
	if second.ContentHash() != first.ContentHash() {
		t.Error("cached program differs from the translated one")
	}
	if loc, ok := second.Location(2); !ok || loc.Column != 3 {
		t.Errorf("cached source map lost: Location(2) = %+v, %v", loc, ok)
	}

	out, err := bytecode.NewVM().Execute(second)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(out) != 1 || out[0] != 2 {
		t.Errorf("output = %v, want [2]", out)
	}
}

func TestStoreTranslateLargeProgramHits(t *testing.T) {
	s := openTestStore(t)
	src := bytes.Repeat([]byte("+[-]"), 50000)

	if _, hit, err := s.Translate(src); err != nil || hit {
		t.Fatalf("first Translate = hit %v, err %v; want miss", hit, err)
	}
	prog, hit, err := s.Translate(src)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if !hit {
		t.Error("second Translate of a large program should hit")
	}
	if prog.Len() != 200000 {
		t.Errorf("cached Len = %d, want 200000", prog.Len())
	}
}

func TestStoreTranslateDoesNotCacheErrors(t *testing.T) {
	s := openTestStore(t)
	src := []byte("]")

	if _, _, err := s.Translate(src); err == nil {
		t.Fatal("expected translation error")
	}
	if _, ok, err := s.Get(SourceHash(src)); err != nil || ok {
		t.Errorf("Get after failed Translate = %v, %v; want miss", ok, err)
	}
}

func TestStoreGetMiss(t *testing.T) {
	s := openTestStore(t)
	prog, ok, err := s.Get(SourceHash([]byte("never stored")))
	if err != nil || ok || prog != nil {
		t.Errorf("Get = %v, %v, %v; want nil, false, nil", prog, ok, err)
	}
}

func TestStorePersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	src := []byte("+.")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, _, err := s.Translate(src); err != nil {
		t.Fatalf("Translate: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if _, ok, err := s.Get(SourceHash(src)); err != nil || !ok {
		t.Errorf("Get after reopen = %v, %v; want hit", ok, err)
	}
}

func TestStoreRecordRun(t *testing.T) {
	s := openTestStore(t)
	prog, err := bytecode.TranslateString("+.")
	if err != nil {
		t.Fatal(err)
	}

	older := NewRunRecord(prog)
	older.StartedAt = time.Now().Add(-time.Minute)
	older.Duration = 3 * time.Millisecond
	older.OutputLen = 1

	newer := NewRunRecord(prog)
	newer.Error = "io failure at 0 (INPUT): read input: EOF"

	for _, r := range []RunRecord{older, newer} {
		if err := s.RecordRun(r); err != nil {
			t.Fatalf("RecordRun: %v", err)
		}
	}

	runs, err := s.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("RecentRuns returned %d runs, want 2", len(runs))
	}
	if runs[0].ID != newer.ID || runs[1].ID != older.ID {
		t.Errorf("runs not newest first: %v, %v", runs[0].ID, runs[1].ID)
	}
	if runs[0].Error != newer.Error {
		t.Errorf("error = %q, want %q", runs[0].Error, newer.Error)
	}
	if runs[1].Duration != older.Duration || runs[1].OutputLen != 1 {
		t.Errorf("older run = %+v", runs[1])
	}
	if runs[1].ProgramHash != prog.ContentHash() {
		t.Error("program hash not preserved")
	}

	limited, err := s.RecentRuns(1)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("RecentRuns(1) returned %d runs", len(limited))
	}
}

func TestStoreClosed(t *testing.T) {
	s := openTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, _, err := s.Get([32]byte{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Get after Close = %v, want ErrClosed", err)
	}
	if err := s.RecordRun(RunRecord{}); !errors.Is(err, ErrClosed) {
		t.Errorf("RecordRun after Close = %v, want ErrClosed", err)
	}
}
