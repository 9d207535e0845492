package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newTestAPIKeyService() (*APIKeyService, *memAPIKeyRepo) {
	repo := &memAPIKeyRepo{}
	svc := NewAPIKeyService(repo, testLogger())
	svc.cost = bcrypt.MinCost
	return svc, repo
}

func TestAPIKeyService_CreateAndValidate(t *testing.T) {
	svc, repo := newTestAPIKeyService()
	ctx := context.Background()

	created, err := svc.Create(ctx, adminActor, APIKeyInput{
		Name:        " Киоск Феникс ",
		Permissions: []string{PermQuestionsRead, PermCheckInCreate, PermQuestionsRead},
	})
	if err != nil {
		t.Fatalf("Create ошибка: %v", err)
	}
	if !strings.HasPrefix(created.Secret, "fd_") || len(created.Secret) != 3+64 {
		t.Errorf("Secret = %q, ожидался fd_ и 64 hex-символа", created.Secret)
	}
	if created.Name != "Киоск Феникс" {
		t.Errorf("Name = %q", created.Name)
	}
	if created.KeyHash != "" {
		t.Error("хэш не должен возвращаться клиенту")
	}
	if !slices.Equal(created.Permissions, []string{PermCheckInCreate, PermQuestionsRead}) {
		t.Errorf("Permissions = %v", created.Permissions)
	}

	stored := repo.keys[0]
	if stored.KeyHash == "" || stored.KeyHash == created.Secret {
		t.Fatal("в хранилище должен лежать хэш, а не секрет")
	}

	k, err := svc.Validate(ctx, created.Secret)
	if err != nil {
		t.Fatalf("Validate ошибка: %v", err)
	}
	if k.ID != created.ID || k.KeyHash != "" {
		t.Errorf("ключ = %+v", k)
	}
	if !slices.Equal(repo.touched, []int64{created.ID}) {
		t.Errorf("touched = %v", repo.touched)
	}
}

func TestAPIKeyService_Validate_Rejects(t *testing.T) {
	svc, _ := newTestAPIKeyService()
	ctx := context.Background()

	created, err := svc.Create(ctx, adminActor, APIKeyInput{Name: "k", Permissions: []string{PermAdsRead}})
	if err != nil {
		t.Fatalf("Create ошибка: %v", err)
	}

	tests := []struct {
		name string
		key  string
	}{
		{"пустой", ""},
		{"без префикса", strings.TrimPrefix(created.Secret, "fd_")},
		{"короткий", "fd_abc"},
		{"чужой секрет", "fd_" + strings.Repeat("0", 64)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Validate(ctx, tt.key); !errors.Is(err, ErrInvalidAPIKey) {
				t.Errorf("ошибка = %v, ожидалась ErrInvalidAPIKey", err)
			}
		})
	}
}

func TestAPIKeyService_Revoke(t *testing.T) {
	svc, _ := newTestAPIKeyService()
	ctx := context.Background()

	created, err := svc.Create(ctx, adminActor, APIKeyInput{Name: "k", Permissions: []string{PermSitesRead}})
	if err != nil {
		t.Fatalf("Create ошибка: %v", err)
	}

	if err := svc.Revoke(ctx, adminActor, created.ID); err != nil {
		t.Fatalf("Revoke ошибка: %v", err)
	}
	if _, err := svc.Validate(ctx, created.Secret); !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("после отзыва: ошибка = %v, ожидалась ErrInvalidAPIKey", err)
	}
	if err := svc.Revoke(ctx, adminActor, created.ID); err != nil {
		t.Errorf("повторный отзыв: %v", err)
	}
	if err := svc.Revoke(ctx, adminActor, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("неизвестный ключ: ошибка = %v, ожидалась ErrNotFound", err)
	}
}

func TestAPIKeyService_Create_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		in      APIKeyInput
		wantErr error
	}{
		{"неизвестное разрешение", APIKeyInput{Name: "k", Permissions: []string{PermAdsRead, "budgets:write"}}, ErrValidation},
		{"без разрешений", APIKeyInput{Name: "k"}, ErrValidation},
		{"без имени", APIKeyInput{Name: "  ", Permissions: []string{PermAdsRead}}, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestAPIKeyService()
			if _, err := svc.Create(context.Background(), adminActor, tt.in); !errors.Is(err, tt.wantErr) {
				t.Fatalf("ошибка = %v, ожидалась %v", err, tt.wantErr)
			}
			if len(repo.keys) != 0 {
				t.Error("ключ не должен сохраняться")
			}
		})
	}

	svc, _ := newTestAPIKeyService()
	_, err := svc.Create(context.Background(), directorActor, APIKeyInput{Name: "k", Permissions: []string{PermAdsRead}})
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("директор: ошибка = %v, ожидалась ErrForbidden", err)
	}
}
