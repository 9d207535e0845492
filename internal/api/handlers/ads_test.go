package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
	"github.com/rlarcher1021/seazwf-sub002/internal/repository"
	"github.com/rlarcher1021/seazwf-sub002/internal/service"
	"github.com/rlarcher1021/seazwf-sub002/internal/storage/filestore"
)

// pngBytes — минимальные данные, которые определяются как image/png.
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 64)...)

type fakeAdRepo struct {
	repository.AdRepository
	created []*model.GlobalAd
}

func (f *fakeAdRepo) CreateGlobal(_ context.Context, ad *model.GlobalAd) error {
	ad.ID = int64(len(f.created) + 1)
	f.created = append(f.created, ad)
	return nil
}

func newAdHandler(t *testing.T) (*APIHandler, *fakeAdRepo, *filestore.FileStore) {
	t.Helper()
	images, err := filestore.New(t.TempDir(), "/uploads", 1024)
	if err != nil {
		t.Fatalf("filestore.New: %v", err)
	}
	repo := &fakeAdRepo{}
	svc := Services{Ads: service.NewAdService(repo, images, testLogger())}
	return NewAPIHandler(NewHealthHandler(nil, nil), svc, images, testLogger()), repo, images
}

// multipartAd формирует multipart-запрос создания объявления.
func multipartAd(t *testing.T, fields map[string]string, image []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if image != nil {
		fw, err := mw.CreateFormFile("image", "banner.png")
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		_, _ = fw.Write(image)
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return withActor(req, testAdmin)
}

// storedFiles возвращает имена файлов в директории хранилища.
func storedFiles(t *testing.T, images *filestore.FileStore) []string {
	t.Helper()
	entries, err := os.ReadDir(images.DataDir())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestCreateAd_ImageUpload(t *testing.T) {
	h, repo, images := newAdHandler(t)

	rec := httptest.NewRecorder()
	h.CreateAd(rec, multipartAd(t, map[string]string{"type": "image", "title": "Ярмарка вакансий"}, pngBytes))

	if rec.Code != http.StatusCreated {
		t.Fatalf("статус = %d, ожидалось 201: %s", rec.Code, rec.Body.String())
	}
	var resp adResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("ответ не JSON: %v", err)
	}
	if resp.ImagePath == nil || filepath.Ext(*resp.ImagePath) != ".png" {
		t.Fatalf("image_path = %v", resp.ImagePath)
	}
	if !images.Exists(*resp.ImagePath) {
		t.Errorf("файл %s должен существовать", *resp.ImagePath)
	}
	if len(repo.created) != 1 || !repo.created[0].IsActive {
		t.Errorf("создано = %+v", repo.created)
	}
}

func TestCreateAd_TextJSON(t *testing.T) {
	h, repo, _ := newAdHandler(t)

	rec := httptest.NewRecorder()
	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/ads",
		jsonBody(`{"type":"text","title":"Часы работы","text":"Пн-Пт 8:00-17:00","is_active":false}`)), testAdmin)
	req.Header.Set("Content-Type", "application/json")
	h.CreateAd(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("статус = %d: %s", rec.Code, rec.Body.String())
	}
	if len(repo.created) != 1 || repo.created[0].IsActive || repo.created[0].ImagePath != nil {
		t.Errorf("создано = %+v", repo.created[0])
	}
}

// TestCreateAd_RejectedUploadIsRemoved проверяет, что загруженный файл
// удаляется, если объявление не прошло проверку.
func TestCreateAd_RejectedUploadIsRemoved(t *testing.T) {
	h, repo, images := newAdHandler(t)

	rec := httptest.NewRecorder()
	h.CreateAd(rec, multipartAd(t, map[string]string{"type": "text", "title": "Баннер", "text": "x"}, pngBytes))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("статус = %d, ожидалось 400", rec.Code)
	}
	if files := storedFiles(t, images); len(files) != 0 {
		t.Errorf("в хранилище остались файлы: %v", files)
	}
	if len(repo.created) != 0 {
		t.Error("объявление не должно создаваться")
	}
}

func TestCreateAd_UploadRejects(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		image  []byte
	}{
		{"не изображение", map[string]string{"type": "image", "title": "t"}, []byte("#!/bin/sh\necho pwned\n")},
		{"слишком большой", map[string]string{"type": "image", "title": "t"}, append(append([]byte{}, pngBytes...), make([]byte, 2048)...)},
		{"image без файла", map[string]string{"type": "image", "title": "t"}, nil},
		{"некорректный is_active", map[string]string{"type": "text", "title": "t", "text": "x", "is_active": "да"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, repo, images := newAdHandler(t)
			rec := httptest.NewRecorder()
			h.CreateAd(rec, multipartAd(t, tt.fields, tt.image))

			if rec.Code != http.StatusBadRequest {
				t.Errorf("статус = %d, ожидалось 400: %s", rec.Code, rec.Body.String())
			}
			if files := storedFiles(t, images); len(files) != 0 {
				t.Errorf("в хранилище остались файлы: %v", files)
			}
			if len(repo.created) != 0 {
				t.Error("объявление не должно создаваться")
			}
		})
	}
}

func TestServeUpload(t *testing.T) {
	h, _, images := newAdHandler(t)

	saved, err := images.Save(bytes.NewReader(pngBytes))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	name := filepath.Base(saved.PublicPath)

	rec := httptest.NewRecorder()
	req := withRouteParams(httptest.NewRequest(http.MethodGet, saved.PublicPath, nil), map[string]string{"name": name})
	h.ServeUpload(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидалось 200", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("ожидался заголовок X-Content-Type-Options: nosniff")
	}
	if !bytes.Equal(rec.Body.Bytes(), pngBytes) {
		t.Error("содержимое файла не совпадает")
	}
}

func TestServeUpload_InvalidName(t *testing.T) {
	h, _, _ := newAdHandler(t)

	for _, name := range []string{"..", "../etc/passwd", ".hidden.png", `..\boot.ini`, ""} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := withRouteParams(httptest.NewRequest(http.MethodGet, "/uploads/x", nil), map[string]string{"name": name})
			h.ServeUpload(rec, req)

			if rec.Code != http.StatusNotFound {
				t.Errorf("статус = %d, ожидалось 404", rec.Code)
			}
		})
	}
}
