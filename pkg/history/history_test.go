package history

import (
	"path/filepath"
	"testing"
	"time"
)

func entry(callID, number string, endedAt time.Time) Entry {
	return Entry{
		CallID:     callID,
		FromNumber: number,
		EndedAt:    endedAt,
		Verdict:    "suspicious",
		RiskTier:   "medium",
		Score:      0.7,
		TurnCount:  3,
	}
}

func TestMemoryStoreListNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()
	_ = s.Append(entry("a", "+8210", now.Add(-time.Hour)))
	_ = s.Append(entry("b", "+8210", now))
	got, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].CallID != "b" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestMemoryStoreRemove(t *testing.T) {
	s := NewMemoryStore()
	_ = s.Append(entry("a", "+8210", time.Now()))
	if err := s.Remove("a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Remove("missing"); err != nil {
		t.Fatalf("remove unknown must be a no-op: %v", err)
	}
	got, _ := s.List()
	if len(got) != 0 {
		t.Fatalf("entry not removed: %+v", got)
	}
}

func TestMemoryStoreUpdate(t *testing.T) {
	s := NewMemoryStore()
	_ = s.Append(entry("a", "+8210", time.Now()))

	verdict := "confirmed_phishing"
	score := 0.95
	if err := s.Update("a", EntryPatch{Verdict: &verdict, Score: &score, FactorLabels: []string{"송금 요구"}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := s.List()
	if got[0].Verdict != "confirmed_phishing" || got[0].Score != 0.95 {
		t.Fatalf("patch not applied: %+v", got[0])
	}
	if len(got[0].FactorLabels) != 1 || got[0].FactorLabels[0] != "송금 요구" {
		t.Fatalf("labels not replaced: %+v", got[0].FactorLabels)
	}
	// Untouched fields survive.
	if got[0].RiskTier != "medium" {
		t.Fatalf("risk tier lost: %+v", got[0])
	}
	if err := s.Update("missing", EntryPatch{Verdict: &verdict}); err != ErrNoEntry {
		t.Fatalf("expected ErrNoEntry, got %v", err)
	}
}

func TestFileStoreUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	s := NewFileStore(path)
	now := time.Now().Truncate(time.Second)
	_ = s.Append(entry("a", "+8210", now.Add(-time.Minute)))
	_ = s.Append(entry("b", "+8211", now))

	verdict := "normal"
	if err := s.Update("a", EntryPatch{Verdict: &verdict}); err != nil {
		t.Fatalf("update: %v", err)
	}
	byNum, _ := s.ByNumber("+8210")
	if len(byNum) != 1 || byNum[0].Verdict != "normal" {
		t.Fatalf("patch not persisted: %+v", byNum)
	}
	byNum, _ = s.ByNumber("+8211")
	if len(byNum) != 1 || byNum[0].Verdict != "suspicious" {
		t.Fatalf("other entry touched: %+v", byNum)
	}
	if err := s.Update("missing", EntryPatch{Verdict: &verdict}); err != ErrNoEntry {
		t.Fatalf("expected ErrNoEntry, got %v", err)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	s := NewFileStore(path)
	now := time.Now().Truncate(time.Second)
	_ = s.Append(entry("a", "+8210", now.Add(-time.Minute)))
	_ = s.Append(entry("b", "+8211", now))

	got, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].CallID != "b" {
		t.Fatalf("unexpected entries: %+v", got)
	}

	byNum, _ := s.ByNumber("+8211")
	if len(byNum) != 1 || byNum[0].CallID != "b" {
		t.Fatalf("ByNumber wrong: %+v", byNum)
	}

	if err := s.Remove("a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got, _ = s.List()
	if len(got) != 1 || got[0].CallID != "b" {
		t.Fatalf("remove broke store: %+v", got)
	}
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "nope.jsonl"))
	got, err := s.List()
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty list, got %v %v", got, err)
	}
}

func TestBlockListMemory(t *testing.T) {
	b := NewMemoryBlockList()
	_ = b.Add("+8210")
	_ = b.Add("+8210")
	if !b.Contains("+8210") {
		t.Fatal("number not blocked")
	}
	if b.Contains("+8299") {
		t.Fatal("unknown number blocked")
	}
	_ = b.Remove("+8210")
	if b.Contains("+8210") {
		t.Fatal("number still blocked after remove")
	}
}

func TestFileBlockListPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocked.json")
	b, err := NewFileBlockList(path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_ = b.Add("+8210")
	_ = b.Add("+8211")
	_ = b.Remove("+8211")

	reloaded, err := NewFileBlockList(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.Contains("+8210") || reloaded.Contains("+8211") {
		t.Fatalf("persisted state wrong: %v", reloaded.Numbers())
	}
}
