package nbt

// Options управляет поведением операций над деревом
type Options struct {
	// Overwrite разрешает заменять существующий тег
	Overwrite bool
	// Recursive создаёт недостающих предков; для удаления разрешает удалять контейнеры
	Recursive bool
}

// Операции над деревом никогда не изменяют входное дерево: перестраиваются
// только предки по пути к изменению, остальные поддеревья разделяются.

// rebuild спускается по segs от node, применяет apply к последнему узлу и
// пересобирает всех предков. Недостающие узлы создаются, только если create;
// leaf задаёт, каким контейнером станет недостающий последний узел.
func rebuild(node Payload, segs []string, prefix string, create bool, leaf func() Payload,
	apply func(Payload, string) (Payload, error)) (Payload, error) {
	if len(segs) == 0 {
		return apply(node, prefix)
	}

	seg := segs[0]
	path := JoinPath(prefix, seg)

	// контейнер для отсутствующего узла
	missing := func() Payload {
		if len(segs) == 1 {
			return leaf()
		}
		if _, ok := ListIndex(segs[1]); ok {
			return List{Elem: KindCompound}
		}
		return NewCompound()
	}

	switch v := node.(type) {
	case Compound:
		i := v.index(seg)
		var child Payload
		if i >= 0 {
			child = v[i].Payload
		} else {
			if !create {
				return nil, ErrPathNotFound
			}
			child = missing()
		}

		newChild, err := rebuild(child, segs[1:], path, create, leaf, apply)
		if err != nil {
			return nil, err
		}
		return v.with(Tag{Name: seg, Payload: newChild}, i), nil

	case List:
		idx, ok := ListIndex(seg)
		if !ok {
			return nil, ErrPathNotFound
		}
		if v.Elem == KindEnd && len(v.Items) == 0 {
			v.Elem = KindCompound
		}
		if v.Elem != KindCompound {
			return nil, ErrNotContainer
		}

		var child Payload
		if idx < len(v.Items) {
			child = v.Items[idx]
		} else {
			if !create {
				return nil, ErrPathNotFound
			}
			child = NewCompound()
		}

		newChild, err := rebuild(child, segs[1:], path, create, leaf, apply)
		if err != nil {
			return nil, err
		}
		return v.with(idx, newChild), nil
	}

	if create {
		return nil, ErrNotContainer
	}
	return nil, ErrPathNotFound
}

// with возвращает копию COMPOUND, в которой тег на позиции i заменён на t.
// При i < 0 тег вставляется перед завершающим End.
func (c Compound) with(t Tag, i int) Compound {
	children := c.Children()
	out := make(Compound, 0, len(children)+2)
	replaced := false
	for _, child := range children {
		if i >= 0 && child.Name == t.Name && !replaced {
			out = append(out, t)
			replaced = true
			continue
		}
		out = append(out, child)
	}
	if !replaced {
		out = append(out, t)
	}
	return append(out, Tag{Payload: End{}})
}

// with возвращает копию списка с элементом p на позиции idx.
// Промежуточные позиции заполняются пустыми COMPOUND.
func (l List) with(idx int, p Payload) List {
	n := max(len(l.Items), idx+1)
	items := make([]Payload, n)
	copy(items, l.Items)
	for i := len(l.Items); i < idx; i++ {
		items[i] = NewCompound()
	}
	items[idx] = p
	return List{Elem: l.Elem, Items: items}
}

func pathError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*PathError); ok {
		return err
	}
	return &PathError{Op: op, Path: path, Err: err}
}

// AddTag добавляет tag в COMPOUND по пути path.
// Без Recursive отсутствующий предок даёт ErrPathNotFound, без Overwrite
// существующий тег с тем же именем даёт ErrAlreadyExists.
func AddTag(root Tag, path string, tag Tag, opts Options) (Tag, error) {
	const op = "add"
	if tag.Kind() == KindEnd {
		return Tag{}, &PathError{Op: op, Path: path, Err: ErrNotContainer}
	}

	apply := func(node Payload, at string) (Payload, error) {
		c, ok := node.(Compound)
		if !ok {
			return nil, &PathError{Op: op, Path: at, Err: ErrNotContainer}
		}
		i := c.index(tag.Name)
		if i >= 0 && !opts.Overwrite {
			return nil, &PathError{Op: op, Path: JoinPath(at, tag.Name), Err: ErrAlreadyExists}
		}
		return c.with(tag, i), nil
	}

	p, err := rebuild(root.Payload, SplitPath(path), "", opts.Recursive,
		func() Payload { return NewCompound() }, apply)
	if err != nil {
		return Tag{}, pathError(op, path, err)
	}
	return Tag{Name: root.Name, Payload: p}, nil
}

// AddCompoundListItem записывает элемент из tags в LIST из COMPOUND по пути
// path на позицию index. Если index больше длины списка, промежуточные
// позиции заполняются пустыми COMPOUND. Пустой список с типом END
// становится списком COMPOUND.
func AddCompoundListItem(root Tag, path string, index int, tags []Tag, opts Options) (Tag, error) {
	const op = "add list item"
	if index < 0 {
		return Tag{}, &PathError{Op: op, Path: path, Err: ErrPathNotFound}
	}
	item := NewCompound(tags...)

	apply := func(node Payload, at string) (Payload, error) {
		l, ok := node.(List)
		if !ok {
			return nil, &PathError{Op: op, Path: at, Err: ErrNotContainer}
		}
		if l.Elem == KindEnd && len(l.Items) == 0 {
			l.Elem = KindCompound
		}
		if l.Elem != KindCompound {
			return nil, &PathError{Op: op, Path: at, Err: ErrNotContainer}
		}
		if index < len(l.Items) && !opts.Overwrite {
			return nil, &PathError{Op: op, Path: JoinPath(at, "["+itoa(index)+"]"), Err: ErrAlreadyExists}
		}
		return l.with(index, item), nil
	}

	p, err := rebuild(root.Payload, SplitPath(path), "", opts.Recursive,
		func() Payload { return List{Elem: KindCompound} }, apply)
	if err != nil {
		return Tag{}, pathError(op, path, err)
	}
	return Tag{Name: root.Name, Payload: p}, nil
}

// DeleteTag удаляет тег по пути. Удаление COMPOUND или LIST требует recursive.
func DeleteTag(root Tag, path string, recursive bool) (Tag, error) {
	const op = "delete"
	segs := SplitPath(path)
	if len(segs) == 0 {
		return Tag{}, &PathError{Op: op, Path: path, Err: ErrPathNotFound}
	}
	base := segs[len(segs)-1]

	apply := func(node Payload, at string) (Payload, error) {
		target := JoinPath(at, base)
		switch v := node.(type) {
		case Compound:
			i := v.index(base)
			if i < 0 {
				return nil, &PathError{Op: op, Path: target, Err: ErrPathNotFound}
			}
			if v[i].Kind().IsContainer() && !recursive {
				return nil, &PathError{Op: op, Path: target, Err: ErrMissingRecursiveFlag}
			}
			out := make(Compound, 0, len(v))
			for j, t := range v {
				if j != i {
					out = append(out, t)
				}
			}
			return out, nil
		case List:
			idx, ok := ListIndex(base)
			if !ok || idx >= len(v.Items) {
				return nil, &PathError{Op: op, Path: target, Err: ErrPathNotFound}
			}
			if v.Items[idx].Kind().IsContainer() && !recursive {
				return nil, &PathError{Op: op, Path: target, Err: ErrMissingRecursiveFlag}
			}
			items := make([]Payload, 0, len(v.Items)-1)
			items = append(items, v.Items[:idx]...)
			items = append(items, v.Items[idx+1:]...)
			return List{Elem: v.Elem, Items: items}, nil
		}
		return nil, &PathError{Op: op, Path: target, Err: ErrPathNotFound}
	}

	p, err := rebuild(root.Payload, segs[:len(segs)-1], "", false, nil, apply)
	if err != nil {
		return Tag{}, pathError(op, path, err)
	}
	return Tag{Name: root.Name, Payload: p}, nil
}

// EditTag заменяет тег по пути на tag, сохраняя его позицию. Имя может
// измениться; другие соседи с новым именем удаляются, чтобы имена остались
// уникальными. Элемент списка можно заменить только на COMPOUND.
func EditTag(root Tag, path string, tag Tag) (Tag, error) {
	const op = "edit"
	segs := SplitPath(path)
	if len(segs) == 0 {
		return tag, nil
	}
	base := segs[len(segs)-1]

	apply := func(node Payload, at string) (Payload, error) {
		target := JoinPath(at, base)
		switch v := node.(type) {
		case Compound:
			i := v.index(base)
			if i < 0 {
				return nil, &PathError{Op: op, Path: target, Err: ErrPathNotFound}
			}
			out := make(Compound, 0, len(v))
			for j, t := range v {
				switch {
				case j == i:
					out = append(out, tag)
				case t.Kind() != KindEnd && t.Name == tag.Name:
				default:
					out = append(out, t)
				}
			}
			return out, nil
		case List:
			idx, ok := ListIndex(base)
			if !ok || idx >= len(v.Items) {
				return nil, &PathError{Op: op, Path: target, Err: ErrPathNotFound}
			}
			c, ok := tag.Payload.(Compound)
			if !ok || v.Elem != KindCompound {
				return nil, &PathError{Op: op, Path: target, Err: ErrNotContainer}
			}
			return v.with(idx, c), nil
		}
		return nil, &PathError{Op: op, Path: target, Err: ErrPathNotFound}
	}

	p, err := rebuild(root.Payload, segs[:len(segs)-1], "", false, nil, apply)
	if err != nil {
		return Tag{}, pathError(op, path, err)
	}
	return Tag{Name: root.Name, Payload: p}, nil
}
