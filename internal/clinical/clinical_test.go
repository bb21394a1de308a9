package clinical

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/harborhealth/platform/internal/shared/types"
)

func TestNoteEditable(t *testing.T) {
	tests := []struct {
		status NoteStatus
		want   bool
	}{
		{NoteStatusDraft, true},
		{NoteStatusPendingReview, true},
		{NoteStatusSigned, false},
		{NoteStatusAmended, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			note := &SOAPNote{Status: tt.status}
			if got := note.Editable(); got != tt.want {
				t.Errorf("Editable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidSection(t *testing.T) {
	for _, s := range []Section{SectionSubjective, SectionObjective, SectionAssessment, SectionPlan} {
		if !ValidSection(s) {
			t.Errorf("ValidSection(%q) = false, want true", s)
		}
	}
	if ValidSection(Section("vitals")) {
		t.Error("ValidSection(vitals) = true, want false")
	}
}

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore(time.Minute)
	patientID := types.NewID()
	authorID := types.NewID()

	session := store.Start(patientID, authorID, VisitSkilledNursing)
	if session.ID.IsZero() {
		t.Fatal("expected session ID")
	}

	if _, err := store.Append(session.ID, "patient reports less dyspnea"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := store.Append(session.ID, "ambulating with walker"); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := store.Get(session.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if want := "patient reports less dyspnea ambulating with walker"; got.Transcript() != want {
		t.Errorf("Transcript() = %q, want %q", got.Transcript(), want)
	}

	removed, err := store.Remove(session.ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed.ID != session.ID {
		t.Error("removed wrong session")
	}
	if _, err := store.Get(session.ID); err == nil {
		t.Error("expected not found after removal")
	}
}

func TestSessionStoreUnknownSession(t *testing.T) {
	store := NewSessionStore(time.Minute)

	if _, err := store.Append(types.NewID(), "segment"); err == nil {
		t.Error("expected error appending to unknown session")
	}
	if _, err := store.Remove(types.NewID()); err == nil {
		t.Error("expected error removing unknown session")
	}
}

func TestSessionStoreEviction(t *testing.T) {
	store := NewSessionStore(10 * time.Millisecond)

	stale := store.Start(types.NewID(), types.NewID(), VisitPhysicalTherapy)
	fresh := store.Start(types.NewID(), types.NewID(), VisitPhysicalTherapy)

	// Age only the stale session
	store.mu.Lock()
	store.sessions[stale.ID].UpdatedAt = time.Now().Add(-time.Minute)
	store.mu.Unlock()

	evicted := store.evictIdle(time.Now())
	if evicted != 1 {
		t.Errorf("evictIdle() = %d, want 1", evicted)
	}
	if _, err := store.Get(stale.ID); err == nil {
		t.Error("stale session should be evicted")
	}
	if _, err := store.Get(fresh.ID); err != nil {
		t.Error("fresh session should survive")
	}
}

func TestSessionStoreConcurrentAppends(t *testing.T) {
	store := NewSessionStore(time.Minute)
	session := store.Start(types.NewID(), types.NewID(), VisitSkilledNursing)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Append(session.ID, "segment"); err != nil {
				t.Errorf("append: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := store.Get(session.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Segments) != 50 {
		t.Errorf("len(Segments) = %d, want 50", len(got.Segments))
	}
}

func TestSessionStoreReturnsCopies(t *testing.T) {
	store := NewSessionStore(time.Minute)
	session := store.Start(types.NewID(), types.NewID(), VisitSkilledNursing)

	// Readers serialize sessions while writers append. The store must hand
	// out copies so the snapshot a reader holds never mutates under it.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if _, err := store.Append(session.ID, "segment"); err != nil {
				t.Errorf("append: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			got, err := store.Get(session.ID)
			if err != nil {
				t.Errorf("get: %v", err)
				return
			}
			if _, err := json.Marshal(got); err != nil {
				t.Errorf("marshal: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	snapshot, err := store.Get(session.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := store.Append(session.ID, "after"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(snapshot.Segments) != 1000 {
		t.Errorf("snapshot mutated after append: len = %d, want 1000", len(snapshot.Segments))
	}
}
