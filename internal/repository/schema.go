package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	// answerTable — таблица регистраций, хранящая колонки ответов.
	answerTable = "check_ins"
	// answerColumnPrefix — префикс колонки ответа на вопрос.
	answerColumnPrefix = "q_"
	// maxIdentifierLen — предел длины идентификатора PostgreSQL.
	maxIdentifierLen = 63
)

var slugPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// ErrInvalidColumnName — slug не годится для имени колонки.
var ErrInvalidColumnName = errors.New("недопустимое имя колонки ответа")

// AnswerColumn возвращает имя колонки ответа q_<slug> или
// ErrInvalidColumnName, если slug не проходит проверку.
func AnswerColumn(slug string) (string, error) {
	if !slugPattern.MatchString(slug) {
		return "", fmt.Errorf("%w: %q должен соответствовать ^[a-z0-9_]+$", ErrInvalidColumnName, slug)
	}
	col := answerColumnPrefix + slug
	if len(col) > maxIdentifierLen {
		return "", fmt.Errorf("%w: %q длиннее %d символов", ErrInvalidColumnName, col, maxIdentifierLen)
	}
	return col, nil
}

// SchemaManager — управление колонками ответов в таблице check_ins.
// DDL выполняется на пуле, вне транзакций над строками: это отдельная
// точка фиксации.
type SchemaManager interface {
	// EnsureColumn создаёт колонку q_<slug> типа yes_no, если её нет.
	// Повторный вызов — успешный no-op. created == true, только если
	// колонку создал именно этот вызов.
	EnsureColumn(ctx context.Context, slug string) (created bool, err error)
	// DropColumn удаляет колонку q_<slug>. Отсутствующая колонка — успех.
	// Данные ответов удаляются безвозвратно.
	DropColumn(ctx context.Context, slug string) error
	// ColumnExists проверяет наличие колонки по метаданным схемы.
	ColumnExists(ctx context.Context, slug string) (bool, error)
	// AnswerColumns возвращает все колонки ответов q_* таблицы check_ins.
	AnswerColumns(ctx context.Context) ([]string, error)
}

type schemaManager struct {
	db     DBTX
	logger *slog.Logger
}

// NewSchemaManager создаёт менеджер колонок ответов.
func NewSchemaManager(db DBTX, logger *slog.Logger) SchemaManager {
	return &schemaManager{
		db:     db,
		logger: logger.With(slog.String("component", "schema_manager")),
	}
}

func (m *schemaManager) columnExists(ctx context.Context, col string) (bool, error) {
	var exists bool
	err := m.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_schema = current_schema()
			  AND table_name = $1 AND column_name = $2
		)`, answerTable, col).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки колонки %s: %w", col, err)
	}
	return exists, nil
}

func (m *schemaManager) ColumnExists(ctx context.Context, slug string) (bool, error) {
	col, err := AnswerColumn(slug)
	if err != nil {
		return false, err
	}
	return m.columnExists(ctx, col)
}

func (m *schemaManager) EnsureColumn(ctx context.Context, slug string) (bool, error) {
	col, err := AnswerColumn(slug)
	if err != nil {
		return false, err
	}

	exists, err := m.columnExists(ctx, col)
	if err != nil {
		return false, err
	}
	if exists {
		schemaDDL.WithLabelValues("add", "exists").Inc()
		return false, nil
	}

	ddl := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s yes_no NULL`,
		pgx.Identifier{answerTable}.Sanitize(), pgx.Identifier{col}.Sanitize())
	if _, err := m.db.Exec(ctx, ddl); err != nil {
		// Параллельное создание той же колонки — не ошибка
		if isDuplicateColumn(err) {
			schemaDDL.WithLabelValues("add", "exists").Inc()
			return false, nil
		}
		schemaDDL.WithLabelValues("add", "error").Inc()
		m.logger.Error("Ошибка создания колонки ответа",
			slog.String("column", col),
			slog.String("error", err.Error()),
		)
		return false, fmt.Errorf("ошибка создания колонки %s: %w", col, err)
	}

	schemaDDL.WithLabelValues("add", "ok").Inc()
	m.logger.Info("Колонка ответа создана", slog.String("column", col))
	return true, nil
}

func (m *schemaManager) DropColumn(ctx context.Context, slug string) error {
	col, err := AnswerColumn(slug)
	if err != nil {
		return err
	}

	exists, err := m.columnExists(ctx, col)
	if err != nil {
		return err
	}
	if !exists {
		schemaDDL.WithLabelValues("drop", "absent").Inc()
		return nil
	}

	ddl := fmt.Sprintf(`ALTER TABLE %s DROP COLUMN IF EXISTS %s`,
		pgx.Identifier{answerTable}.Sanitize(), pgx.Identifier{col}.Sanitize())
	if _, err := m.db.Exec(ctx, ddl); err != nil {
		schemaDDL.WithLabelValues("drop", "error").Inc()
		m.logger.Error("Ошибка удаления колонки ответа",
			slog.String("column", col),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("ошибка удаления колонки %s: %w", col, err)
	}

	schemaDDL.WithLabelValues("drop", "ok").Inc()
	m.logger.Warn("Колонка ответа удалена вместе с данными", slog.String("column", col))
	return nil
}

func (m *schemaManager) AnswerColumns(ctx context.Context) ([]string, error) {
	rows, err := m.db.Query(ctx, `
		SELECT column_name::text FROM information_schema.columns
		WHERE table_schema = current_schema()
		  AND table_name = $1 AND column_name LIKE 'q\_%'
		ORDER BY ordinal_position`, answerTable)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения колонок ответов: %w", err)
	}
	cols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения колонок ответов: %w", err)
	}
	return cols, nil
}

// SlugFromColumn возвращает slug по имени колонки q_<slug>.
func SlugFromColumn(col string) string {
	return strings.TrimPrefix(col, answerColumnPrefix)
}

func isDuplicateColumn(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42701" // duplicate_column
	}
	return false
}
