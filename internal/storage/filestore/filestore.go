// Пакет filestore — файлы изображений рекламы на диске.
// Файл записывается во временный, синхронизируется и атомарно
// переименовывается. Наружу отдаётся публичный путь вида
// {urlPrefix}/{имя}, который хранится в global_ads.image_path.
package filestore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrTooLarge — файл превышает допустимый размер.
	ErrTooLarge = errors.New("файл превышает допустимый размер")
	// ErrUnsupportedType — содержимое не является поддерживаемым изображением.
	ErrUnsupportedType = errors.New("неподдерживаемый тип изображения")
	// ErrInvalidPath — путь не принадлежит хранилищу.
	ErrInvalidPath = errors.New("путь вне хранилища изображений")
)

// Поддерживаемые типы изображений и расширения сохраняемых файлов.
var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// sniffLen — сколько байт читается для определения типа содержимого.
const sniffLen = 512

// FileStore — изображения рекламы в директории dataDir.
type FileStore struct {
	dataDir   string
	urlPrefix string
	maxBytes  int64
}

// SaveResult — результат сохранения изображения.
type SaveResult struct {
	// PublicPath — путь, под которым файл доступен клиентам
	PublicPath string
	// FullPath — абсолютный путь файла на диске
	FullPath string
	// ContentType — определённый по содержимому MIME-тип
	ContentType string
	// Size — размер файла в байтах
	Size int64
	// Checksum — SHA-256 содержимого
	Checksum string
}

// New создаёт FileStore. Директория создаётся, если её нет.
// urlPrefix — публичный префикс (например, /uploads), maxBytes — предел
// размера одного файла.
func New(dataDir, urlPrefix string, maxBytes int64) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию загрузок %s: %w", dataDir, err)
	}
	return &FileStore{
		dataDir:   dataDir,
		urlPrefix: "/" + strings.Trim(urlPrefix, "/"),
		maxBytes:  maxBytes,
	}, nil
}

// Save записывает изображение из reader. Тип определяется по содержимому,
// имя файла — UUID с расширением по типу; исходное имя клиента не используется.
//
// Паттерн: temp файл → запись + SHA-256 → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (fs *FileStore) Save(reader io.Reader) (*SaveResult, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(reader, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("ошибка чтения данных: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return nil, fmt.Errorf("%w: пустой файл", ErrUnsupportedType)
	}

	contentType := http.DetectContentType(head)
	ext, ok := imageExtensions[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}

	name := uuid.NewString() + ext
	fullPath := filepath.Join(fs.dataDir, name)
	tmpPath := fullPath + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	hasher := sha256.New()
	// +1 байт, чтобы отличить файл ровно maxBytes от превышения
	src := io.LimitReader(io.MultiReader(bytes.NewReader(head), reader), fs.maxBytes+1)
	size, err := io.Copy(io.MultiWriter(f, hasher), src)
	if err == nil && size > fs.maxBytes {
		err = fmt.Errorf("%w: более %d байт", ErrTooLarge, fs.maxBytes)
	}
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		if errors.Is(err, ErrTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &SaveResult{
		PublicPath:  path.Join(fs.urlPrefix, name),
		FullPath:    fullPath,
		ContentType: contentType,
		Size:        size,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Remove удаляет файл по публичному пути. Отсутствующий файл — не ошибка.
func (fs *FileStore) Remove(publicPath string) error {
	fullPath, err := fs.DiskPath(publicPath)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", publicPath, err)
	}
	return nil
}

// Exists проверяет, что файл по публичному пути есть на диске.
func (fs *FileStore) Exists(publicPath string) bool {
	fullPath, err := fs.DiskPath(publicPath)
	if err != nil {
		return false
	}
	_, err = os.Stat(fullPath)
	return err == nil
}

// DiskPath переводит публичный путь в путь на диске.
// Допускается только имя файла непосредственно под urlPrefix.
func (fs *FileStore) DiskPath(publicPath string) (string, error) {
	name, ok := strings.CutPrefix(publicPath, fs.urlPrefix+"/")
	if !ok || name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") ||
		strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, publicPath)
	}
	return filepath.Join(fs.dataDir, name), nil
}

// DataDir возвращает директорию хранения (для раздачи статики).
func (fs *FileStore) DataDir() string {
	return fs.dataDir
}

// URLPrefix возвращает публичный префикс путей.
func (fs *FileStore) URLPrefix() string {
	return fs.urlPrefix
}

// MaxBytes возвращает предел размера одного файла.
func (fs *FileStore) MaxBytes() int64 {
	return fs.maxBytes
}
