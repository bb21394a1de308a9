package patient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/harborhealth/platform/internal/recycle"
	"github.com/harborhealth/platform/internal/shared/errors"
	"github.com/harborhealth/platform/internal/shared/types"
)

func TestFullName(t *testing.T) {
	tests := []struct {
		name    string
		patient Patient
		want    string
	}{
		{
			name:    "first and last",
			patient: Patient{FirstName: "Maria", LastName: "Santos"},
			want:    "Maria Santos",
		},
		{
			name:    "with middle name",
			patient: Patient{FirstName: "James", MiddleName: "Robert", LastName: "Okafor"},
			want:    "James Robert Okafor",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.patient.FullName(); got != tt.want {
				t.Errorf("FullName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAge(t *testing.T) {
	at := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		dob  time.Time
		want int
	}{
		{
			name: "birthday already passed this year",
			dob:  time.Date(1950, 3, 1, 0, 0, 0, 0, time.UTC),
			want: 76,
		},
		{
			name: "birthday later this year",
			dob:  time.Date(1950, 11, 20, 0, 0, 0, 0, time.UTC),
			want: 75,
		},
		{
			name: "birthday today",
			dob:  time.Date(1961, 6, 15, 0, 0, 0, 0, time.UTC),
			want: 65,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Patient{DateOfBirth: tt.dob}
			if got := p.Age(at); got != tt.want {
				t.Errorf("Age() = %d, want %d", got, tt.want)
			}
		})
	}
}

type fakeStore struct {
	patients      map[types.ID]*Patient
	softDeleteErr error
	softDeleted   []types.ID
}

func (f *fakeStore) Create(ctx context.Context, p *Patient) error { return nil }
func (f *fakeStore) Update(ctx context.Context, p *Patient) error { return nil }
func (f *fakeStore) Restore(ctx context.Context, id types.ID) error {
	return nil
}
func (f *fakeStore) List(ctx context.Context, filter ListPatientsFilter) ([]*Patient, int, error) {
	return nil, 0, nil
}
func (f *fakeStore) GetByMRN(ctx context.Context, mrn types.MRN) (*Patient, error) {
	return nil, errors.NotFound("patient", mrn.String())
}
func (f *fakeStore) GetByID(ctx context.Context, id types.ID) (*Patient, error) {
	p, ok := f.patients[id]
	if !ok {
		return nil, errors.NotFound("patient", id.String())
	}
	return p, nil
}
func (f *fakeStore) SoftDelete(ctx context.Context, id types.ID) error {
	if f.softDeleteErr != nil {
		return f.softDeleteErr
	}
	f.softDeleted = append(f.softDeleted, id)
	return nil
}

type fakeBin struct {
	stashed   []*recycle.Item
	discarded []types.ID
}

func (f *fakeBin) Register(entityType recycle.EntityType, restorer recycle.Restorer) {}
func (f *fakeBin) Stash(ctx context.Context, entityType recycle.EntityType, entityID types.ID, label string, payload any, deletedBy types.ID) (*recycle.Item, error) {
	item := &recycle.Item{ID: types.NewID(), EntityType: entityType, EntityID: entityID, Label: label}
	f.stashed = append(f.stashed, item)
	return item, nil
}
func (f *fakeBin) Discard(ctx context.Context, itemID types.ID) error {
	f.discarded = append(f.discarded, itemID)
	return nil
}

func deleteRequest(id types.ID) *http.Request {
	req := httptest.NewRequest(http.MethodDelete, "/"+id.String(), nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("patientID", id.String())
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestDeletePatientStashesBeforeSoftDelete(t *testing.T) {
	id := types.NewID()
	store := &fakeStore{patients: map[types.ID]*Patient{
		id: {ID: id, MRN: types.MRN("1234567897"), FirstName: "Maria", LastName: "Santos"},
	}}
	bin := &fakeBin{}
	h := NewHandler(store, bin, nil)

	rec := httptest.NewRecorder()
	h.DeletePatient(rec, deleteRequest(id))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if len(bin.stashed) != 1 || bin.stashed[0].EntityID != id {
		t.Fatalf("stashed = %v, want one item for %s", bin.stashed, id)
	}
	if len(store.softDeleted) != 1 || store.softDeleted[0] != id {
		t.Errorf("softDeleted = %v, want [%s]", store.softDeleted, id)
	}
}

func TestDeletePatientBacksOutStashOnFailure(t *testing.T) {
	id := types.NewID()
	store := &fakeStore{
		patients: map[types.ID]*Patient{
			id: {ID: id, MRN: types.MRN("1234567897")},
		},
		softDeleteErr: errors.Internal("connection lost"),
	}
	bin := &fakeBin{}
	h := NewHandler(store, bin, nil)

	rec := httptest.NewRecorder()
	h.DeletePatient(rec, deleteRequest(id))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if len(store.softDeleted) != 0 {
		t.Errorf("softDeleted = %v, want none", store.softDeleted)
	}
	// The failed delete must not leave an orphan recycle item behind.
	if len(bin.stashed) != 1 || len(bin.discarded) != 1 {
		t.Fatalf("stashed = %d, discarded = %d, want 1 and 1", len(bin.stashed), len(bin.discarded))
	}
	if bin.discarded[0] != bin.stashed[0].ID {
		t.Errorf("discarded %s, want the stashed item %s", bin.discarded[0], bin.stashed[0].ID)
	}
}
