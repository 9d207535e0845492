package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Direction — направление перемещения элемента в упорядоченном списке.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// ErrInvalidDirection — неизвестное направление перемещения.
var ErrInvalidDirection = errors.New("недопустимое направление перемещения")

// ParseDirection разбирает направление из строки запроса.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionUp, DirectionDown:
		return Direction(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
}

// OrderedGroup — таблица со столбцом display_order, упорядоченная
// в пределах группы (значения GroupColumn). Имена берутся только
// из объявленных ниже групп, пользовательский ввод сюда не попадает.
type OrderedGroup struct {
	Table       string
	GroupColumn string
}

var (
	siteQuestionsOrder = OrderedGroup{Table: "site_questions", GroupColumn: "site_id"}
	siteAdsOrder       = OrderedGroup{Table: "site_ads", GroupColumn: "site_id"}
)

func (g OrderedGroup) table() string  { return pgx.Identifier{g.Table}.Sanitize() }
func (g OrderedGroup) column() string { return pgx.Identifier{g.GroupColumn}.Sanitize() }

// nextDisplayOrder возвращает max(display_order)+1 или 0 для пустой группы.
// Строки группы блокируются до конца транзакции, но новую строку
// параллельной вставки блокировка не видит: такую гонку ловит отложенное
// ограничение (site_id, display_order), и runInTx возвращает ErrConcurrentUpdate.
func nextDisplayOrder(ctx context.Context, tx pgx.Tx, g OrderedGroup, groupKey int64) (int, error) {
	query := fmt.Sprintf(
		`SELECT display_order FROM %s WHERE %s = $1 FOR UPDATE`,
		g.table(), g.column(),
	)
	rows, err := tx.Query(ctx, query, groupKey)
	if err != nil {
		return 0, fmt.Errorf("ошибка блокировки группы %s: %w", g.Table, err)
	}
	orders, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return 0, fmt.Errorf("ошибка вычисления порядка %s: %w", g.Table, err)
	}

	next := 0
	for _, o := range orders {
		if o+1 > next {
			next = o + 1
		}
	}
	return next, nil
}

// renumberGroup переписывает display_order группы в 0..n-1 с сохранением
// текущего порядка (при равных значениях — по id). Закрывает пропуски
// после удаления.
func renumberGroup(ctx context.Context, db DBTX, g OrderedGroup, groupKey int64) error {
	query := fmt.Sprintf(`
		UPDATE %[1]s AS t
		SET display_order = o.pos
		FROM (
			SELECT id, ROW_NUMBER() OVER (ORDER BY display_order, id) - 1 AS pos
			FROM %[1]s
			WHERE %[2]s = $1
		) AS o
		WHERE t.id = o.id AND t.display_order <> o.pos`,
		g.table(), g.column(),
	)

	if _, err := db.Exec(ctx, query, groupKey); err != nil {
		orderingOps.WithLabelValues(g.Table, "renumber", "error").Inc()
		return fmt.Errorf("ошибка перенумерации %s: %w", g.Table, err)
	}
	orderingOps.WithLabelValues(g.Table, "renumber", "ok").Inc()
	return nil
}

// moveInGroup меняет местами элемент itemID и соседа в направлении dir.
// На границе списка ничего не делает и возвращает false.
// Элемент, не принадлежащий группе, даёт ErrNotFound.
func moveInGroup(ctx context.Context, tx pgx.Tx, g OrderedGroup, groupKey, itemID int64, dir Direction) (bool, error) {
	query := fmt.Sprintf(
		`SELECT id FROM %s WHERE %s = $1 ORDER BY display_order, id FOR UPDATE`,
		g.table(), g.column(),
	)
	rows, err := tx.Query(ctx, query, groupKey)
	if err != nil {
		return false, fmt.Errorf("ошибка чтения порядка %s: %w", g.Table, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return false, fmt.Errorf("ошибка чтения порядка %s: %w", g.Table, err)
	}

	idx := -1
	for i, id := range ids {
		if id == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, ErrNotFound
	}

	neighbour := idx - 1
	if dir == DirectionDown {
		neighbour = idx + 1
	}
	if neighbour < 0 || neighbour >= len(ids) {
		orderingOps.WithLabelValues(g.Table, "move", "boundary").Inc()
		return false, nil
	}
	ids[idx], ids[neighbour] = ids[neighbour], ids[idx]

	// Записываем позиции целиком: заодно закрываются пропуски,
	// если плотность была нарушена вне этого модуля.
	update := fmt.Sprintf(`
		UPDATE %s AS t
		SET display_order = o.pos - 1
		FROM unnest($1::bigint[]) WITH ORDINALITY AS o(id, pos)
		WHERE t.id = o.id AND t.display_order <> o.pos - 1`,
		g.table(),
	)
	if _, err := tx.Exec(ctx, update, ids); err != nil {
		orderingOps.WithLabelValues(g.Table, "move", "error").Inc()
		return false, fmt.Errorf("ошибка перемещения в %s: %w", g.Table, err)
	}
	orderingOps.WithLabelValues(g.Table, "move", "ok").Inc()
	return true, nil
}

// reorder — единая точка входа движка порядка.
// dir == "" — режим перенумерации группы, иначе перемещение itemID.
func reorder(ctx context.Context, db DBTX, g OrderedGroup, groupKey, itemID int64, dir Direction) (bool, error) {
	if dir == "" {
		if err := renumberGroup(ctx, db, g, groupKey); err != nil {
			return false, err
		}
		return true, nil
	}
	if _, err := ParseDirection(string(dir)); err != nil {
		return false, err
	}

	var moved bool
	err := runInTx(ctx, db, func(tx pgx.Tx) error {
		var err error
		moved, err = moveInGroup(ctx, tx, g, groupKey, itemID, dir)
		return err
	})
	return moved, err
}
