package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
)

// TestSiteService_ConfigCache — повторное чтение идёт из кэша,
// запись настройки сбрасывает кэш площадки.
func TestSiteService_ConfigCache(t *testing.T) {
	reads := 0
	stored := map[string]string{ConfigAllowNotifier: "true"}
	repo := &mockSiteRepo{
		listConfigFn: func(_ context.Context, siteID int64) ([]model.SiteConfiguration, error) {
			reads++
			var out []model.SiteConfiguration
			for k, v := range stored {
				out = append(out, model.SiteConfiguration{SiteID: siteID, Key: k, Value: v})
			}
			return out, nil
		},
		setConfigFn: func(_ context.Context, _ int64, key, value string) error {
			stored[key] = value
			return nil
		},
	}
	svc := NewSiteService(repo, 16, time.Minute, testLogger())
	ctx := context.Background()

	if !svc.AllowsNotifier(ctx, 5) || !svc.AllowsNotifier(ctx, 5) {
		t.Fatal("allow_notifier должен быть true")
	}
	if reads != 1 {
		t.Fatalf("чтений из БД = %d, ожидалось 1", reads)
	}

	// Изменение возвращённой копии не портит кэш
	cfg, _ := svc.Config(ctx, 5)
	cfg[ConfigAllowNotifier] = "false"
	if !svc.AllowsNotifier(ctx, 5) {
		t.Error("кэш изменён через возвращённую карту")
	}

	if _, err := svc.SetConfig(ctx, adminActor, 5, ConfigAllowNotifier, "off"); err != nil {
		t.Fatalf("SetConfig ошибка: %v", err)
	}
	if svc.AllowsNotifier(ctx, 5) {
		t.Error("после записи ожидалось false")
	}
	if reads != 2 {
		t.Errorf("чтений из БД = %d, ожидалось 2", reads)
	}
}

func TestSiteService_BoolSetting_ReadErrorIsFalse(t *testing.T) {
	repo := &mockSiteRepo{
		listConfigFn: func(context.Context, int64) ([]model.SiteConfiguration, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := NewSiteService(repo, 16, time.Minute, testLogger())

	if svc.AllowsEmailCollection(context.Background(), 1) {
		t.Error("при ошибке чтения ожидалось false")
	}
}

func TestSiteService_SetConfig_Forbidden(t *testing.T) {
	svc := NewSiteService(&mockSiteRepo{}, 16, time.Minute, testLogger())

	_, err := svc.SetConfig(context.Background(), siteAdminOf(5), 6, ConfigAllowNotifier, "true")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("ошибка = %v, ожидалась ErrForbidden", err)
	}
}

func TestNormalizeConfigValue(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		want    string
		wantErr bool
	}{
		{"bool yes", ConfigAllowEmailCollection, " YES ", "true", false},
		{"bool 0", ConfigAllowClientLogin, "0", "false", false},
		{"bool мусор", ConfigAllowNotifier, "maybe", "", true},
		{"email", ConfigAIAgentEmailAddress, "Agent@Example.org", "agent@example.org", false},
		{"пустой email", ConfigAIAgentEmailAddress, " ", "", false},
		{"плохой email", ConfigAIAgentEmailAddress, "agent@", "", true},
		{"текст", ConfigEmailCollectionDescription, "  Для записи на приём ", "Для записи на приём", false},
		{"неизвестный ключ", "theme", "dark", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeConfigValue(tt.key, tt.value)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ошибка = %v, ожидалась ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("неожиданная ошибка: %v", err)
			}
			if got != tt.want {
				t.Errorf("значение = %q, ожидалось %q", got, tt.want)
			}
		})
	}
}
