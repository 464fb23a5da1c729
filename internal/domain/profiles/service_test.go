package profiles

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/healthadvocate/advocate/internal/platform/auth"
)

type mockRepo struct {
	profiles map[uuid.UUID]*Profile
}

func newMockRepo() *mockRepo {
	return &mockRepo{profiles: make(map[uuid.UUID]*Profile)}
}

func (m *mockRepo) FindByUserID(_ context.Context, userID uuid.UUID) (*Profile, error) {
	for _, p := range m.profiles {
		if p.UserID == userID {
			return p, nil
		}
	}
	return nil, nil
}

func (m *mockRepo) Create(_ context.Context, p *Profile) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.profiles[p.ID] = p
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Profile, error) {
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockRepo) List(_ context.Context, role string, limit, offset int) ([]*Profile, int, error) {
	var all []*Profile
	for _, p := range m.profiles {
		if role == "" || p.Role == role {
			all = append(all, p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Email < all[j].Email })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func newTestService() *Service {
	return NewService(newMockRepo())
}

func strPtr(s string) *string { return &s }

func TestService_Create(t *testing.T) {
	svc := newTestService()
	p := &Profile{UserID: uuid.New(), Email: "jane@example.com"}
	if err := svc.Create(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID == uuid.Nil {
		t.Error("expected id to be assigned")
	}
	if p.Role != RolePatient {
		t.Errorf("expected default role patient, got %s", p.Role)
	}
}

func TestService_Create_Validation(t *testing.T) {
	svc := newTestService()
	tests := []struct {
		name string
		p    *Profile
	}{
		{"missing user", &Profile{Email: "a@b.c"}},
		{"missing email", &Profile{UserID: uuid.New(), Email: "  "}},
		{"bad role", &Profile{UserID: uuid.New(), Email: "a@b.c", Role: "root"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.Create(context.Background(), tt.p); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestService_CreateForAccount(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	accountID := uuid.New()

	err := svc.CreateForAccount(context.Background(), accountID, "sam@example.com",
		auth.Metadata{FirstName: "Sam", LastName: "Lee", Role: RoleAdvocate})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p, _ := repo.FindByUserID(context.Background(), accountID)
	if p == nil {
		t.Fatal("expected profile for account")
	}
	if p.FullName() != "Sam Lee" || p.Role != RoleAdvocate || p.Email != "sam@example.com" {
		t.Errorf("unexpected profile %+v", p)
	}
}

func TestService_CreateForAccount_EmptyNames(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	accountID := uuid.New()

	if err := svc.CreateForAccount(context.Background(), accountID, "x@example.com", auth.Metadata{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, _ := repo.FindByUserID(context.Background(), accountID)
	if p.FirstName != nil || p.LastName != nil {
		t.Error("expected empty names to be stored as null")
	}
}

func TestService_ForUser(t *testing.T) {
	svc := newTestService()
	if _, err := svc.ForUser(context.Background(), uuid.New()); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	p := &Profile{UserID: uuid.New(), Email: "a@example.com"}
	svc.Create(context.Background(), p)
	got, err := svc.ForUser(context.Background(), p.UserID)
	if err != nil || got.ID != p.ID {
		t.Fatalf("expected profile %s, got %v (%v)", p.ID, got, err)
	}
}

func TestService_List_RejectsUnknownRole(t *testing.T) {
	svc := newTestService()
	if _, _, err := svc.List(context.Background(), "owner", 10, 0); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestProfile_FullName(t *testing.T) {
	tests := []struct {
		first, last *string
		want        string
	}{
		{strPtr("Mary"), strPtr("Ann Smith"), "Mary Ann Smith"},
		{strPtr("Cher"), strPtr(""), "Cher"},
		{nil, strPtr("Smith"), "Smith"},
		{nil, nil, ""},
	}
	for _, tt := range tests {
		p := &Profile{FirstName: tt.first, LastName: tt.last}
		if got := p.FullName(); got != tt.want {
			t.Errorf("FullName() = %q, want %q", got, tt.want)
		}
	}
}
