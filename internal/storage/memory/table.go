package memory

// table хранит записи в порядке вставки с автоинкрементным идентификатором.
// Записи хранятся по значению, наружу отдаются копии.
type table[T any] struct {
	rows   map[int64]T
	ids    []int64
	nextID int64
}

func newTable[T any]() table[T] {
	return table[T]{rows: make(map[int64]T)}
}

func (t *table[T]) insert(row T) int64 {
	t.nextID++
	id := t.nextID
	t.rows[id] = row
	t.ids = append(t.ids, id)
	return id
}

func (t *table[T]) get(id int64) (T, bool) {
	row, ok := t.rows[id]
	return row, ok
}

func (t *table[T]) replace(id int64, row T) bool {
	if _, ok := t.rows[id]; !ok {
		return false
	}
	t.rows[id] = row
	return true
}

func (t *table[T]) all() []T {
	result := make([]T, 0, len(t.ids))
	for _, id := range t.ids {
		result = append(result, t.rows[id])
	}
	return result
}

func (t *table[T]) clone() table[T] {
	rows := make(map[int64]T, len(t.rows))
	for id, row := range t.rows {
		rows[id] = row
	}
	ids := make([]int64, len(t.ids))
	copy(ids, t.ids)
	return table[T]{rows: rows, ids: ids, nextID: t.nextID}
}
