package transcript

import (
	"sync"
	"testing"
	"time"
)

func TestAppendAssignsSequentialSeq(t *testing.T) {
	tr := New()
	now := time.Now()
	if seq := tr.Append(SpeakerRemote, "여보세요", now); seq != 0 {
		t.Fatalf("first seq = %d", seq)
	}
	if seq := tr.Append(SpeakerAgent, "누구세요?", now); seq != 1 {
		t.Fatalf("second seq = %d", seq)
	}
	got := tr.Snapshot()
	if len(got) != 2 || got[0].Speaker != SpeakerRemote || got[1].Speaker != SpeakerAgent {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestAppendDropsEmptyText(t *testing.T) {
	tr := New()
	if seq := tr.Append(SpeakerRemote, "", time.Now()); seq != -1 {
		t.Fatalf("empty text must be dropped, got seq %d", seq)
	}
	if tr.Len() != 0 {
		t.Fatalf("empty text was recorded")
	}
}

func TestSnapshotDoesNotAliasInternalState(t *testing.T) {
	tr := New()
	tr.Append(SpeakerRemote, "계좌번호를 알려주세요", time.Now())
	snap := tr.Snapshot()
	snap[0].Text = "mutated"
	if tr.Snapshot()[0].Text != "계좌번호를 알려주세요" {
		t.Fatal("snapshot aliases internal entries")
	}
}

func TestBySpeaker(t *testing.T) {
	tr := New()
	now := time.Now()
	tr.Append(SpeakerRemote, "a", now)
	tr.Append(SpeakerAgent, "b", now)
	tr.Append(SpeakerRemote, "c", now)
	remote := tr.BySpeaker(SpeakerRemote)
	if len(remote) != 2 || remote[0].Text != "a" || remote[1].Text != "c" {
		t.Fatalf("unexpected remote utterances: %+v", remote)
	}
}

func TestConcurrentAppend(t *testing.T) {
	tr := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Append(SpeakerRemote, "x", time.Now())
		}()
	}
	wg.Wait()
	if tr.Len() != 50 {
		t.Fatalf("lost appends: %d", tr.Len())
	}
	seen := map[int]bool{}
	for _, u := range tr.Snapshot() {
		if seen[u.Seq] {
			t.Fatalf("duplicate seq %d", u.Seq)
		}
		seen[u.Seq] = true
	}
}
