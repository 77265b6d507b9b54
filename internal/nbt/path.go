package nbt

import (
	"strconv"
	"strings"
)

// Пути к тегам разделяются "/". Дочерние теги COMPOUND адресуются по имени,
// элементы LIST из COMPOUND по индексу "[i]" или просто "i".
// Пустой путь обозначает корень.

// SplitPath разбивает путь на сегменты, пропуская пустые
func SplitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinPath склеивает сегменты пути
func JoinPath(parts ...string) string {
	var segs []string
	for _, p := range parts {
		segs = append(segs, SplitPath(p)...)
	}
	return strings.Join(segs, "/")
}

// ParentPath путь к родителю
func ParentPath(path string) string {
	segs := SplitPath(path)
	if len(segs) == 0 {
		return ""
	}
	return strings.Join(segs[:len(segs)-1], "/")
}

// BaseName последний сегмент пути
func BaseName(path string) string {
	segs := SplitPath(path)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// ListIndex разбирает сегмент-индекс "[3]" или "3"
func ListIndex(seg string) (int, bool) {
	if len(seg) >= 2 && seg[0] == '[' && seg[len(seg)-1] == ']' {
		seg = seg[1 : len(seg)-1]
	}
	if seg == "" {
		return 0, false
	}
	n, err := strconv.Atoi(seg)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

// Find находит тег по пути. Элемент списка возвращается как безымянный COMPOUND.
// Отсутствующее имя, индекс за пределами списка или проход через скалярное
// значение дают false, а не ошибку.
func Find(root Tag, path string) (Tag, bool) {
	cur := root
	for _, seg := range SplitPath(path) {
		next, ok := step(cur.Payload, seg)
		if !ok {
			return Tag{}, false
		}
		cur = next
	}
	return cur, true
}

// FindPayload то же, что Find, но возвращает только значение
func FindPayload(root Tag, path string) (Payload, bool) {
	t, ok := Find(root, path)
	if !ok {
		return nil, false
	}
	return t.Payload, true
}

func step(p Payload, seg string) (Tag, bool) {
	switch v := p.(type) {
	case Compound:
		return v.Get(seg)
	case List:
		i, ok := ListIndex(seg)
		if !ok || i >= len(v.Items) {
			return Tag{}, false
		}
		c, ok := v.Items[i].(Compound)
		if !ok {
			return Tag{}, false
		}
		return Tag{Payload: c}, true
	}
	return Tag{}, false
}
