package service

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"простое", "Finance", "finance"},
		{"пробелы и знаки", "  Youth & Adult -- Services ", "youth_adult_services"},
		{"цифры", "Region 7 Office", "region_7_office"},
		{"не ASCII", "Финансы", "department"},
		{"смешанное", "Отдел IT", "it"},
		{"пустое", "", "department"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Slugify(tt.in); got != tt.want {
				t.Errorf("Slugify(%q) = %q, ожидалось %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCatalogService_CreateDepartment_SlugSuffix(t *testing.T) {
	repo := &mockCatalogRepo{takenSlugs: map[string]bool{"finance": true, "finance_2": true}}
	svc := NewCatalogService(repo, testLogger())

	d, err := svc.CreateDepartment(context.Background(), directorActor, " Finance ")
	if err != nil {
		t.Fatalf("CreateDepartment ошибка: %v", err)
	}
	if d.Slug != "finance_3" || d.Name != "Finance" {
		t.Errorf("отдел = %+v", d)
	}
}

func TestCatalogService_CreateDepartment_Rejects(t *testing.T) {
	svc := NewCatalogService(&mockCatalogRepo{}, testLogger())
	ctx := context.Background()

	if _, err := svc.CreateDepartment(ctx, staffOwner, "Finance"); !errors.Is(err, ErrForbidden) {
		t.Errorf("сотрудник: ошибка = %v, ожидалась ErrForbidden", err)
	}
	if _, err := svc.CreateDepartment(ctx, adminActor, "   "); !errors.Is(err, ErrValidation) {
		t.Errorf("пустое имя: ошибка = %v, ожидалась ErrValidation", err)
	}
}

func TestCatalogService_CreateGrant_Dates(t *testing.T) {
	svc := NewCatalogService(&mockCatalogRepo{}, testLogger())
	start := ptr(mustDate(t, "2025-07-01"))
	end := ptr(mustDate(t, "2025-06-30"))

	_, err := svc.CreateGrant(context.Background(), directorActor, GrantInput{Name: "WIOA", StartDate: start, EndDate: end})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("ошибка = %v, ожидалась ErrValidation", err)
	}
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		t.Fatalf("дата %q: %v", s, err)
	}
	return d
}
