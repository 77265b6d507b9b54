package nbt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseTree() Tag {
	return NewCompoundTag("",
		NewInt("a", 1),
		NewCompoundTag("data",
			NewString("name", "world"),
			NewList("Inventory", KindCompound,
				NewCompound(NewString("id", "stone")),
			),
		),
	)
}

func names(t *testing.T, tag Tag) []string {
	t.Helper()
	c, ok := tag.Payload.(Compound)
	require.True(t, ok)
	require.Equal(t, KindEnd, c[len(c)-1].Kind(), "COMPOUND должен заканчиваться End")
	var out []string
	for _, child := range c.Children() {
		out = append(out, child.Name)
	}
	return out
}

func TestAddTag(t *testing.T) {
	t.Run("добавление перед End", func(t *testing.T) {
		got, err := AddTag(baseTree(), "", NewByte("b", 2), Options{})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "data", "b"}, names(t, got))
	})

	t.Run("существующий тег без overwrite", func(t *testing.T) {
		_, err := AddTag(baseTree(), "data", NewString("name", "x"), Options{})
		require.ErrorIs(t, err, ErrAlreadyExists)

		var perr *PathError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "data/name", perr.Path)
		assert.Contains(t, err.Error(), "already exists")
	})

	t.Run("замена на месте", func(t *testing.T) {
		got, err := AddTag(baseTree(), "", NewString("a", "new"), Options{Overwrite: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "data"}, names(t, got))
		v, _ := FindPayload(got, "a")
		assert.Equal(t, String("new"), v)
	})

	t.Run("нет предка без recursive", func(t *testing.T) {
		_, err := AddTag(baseTree(), "data/missing/deeper", NewByte("b", 1), Options{})
		require.ErrorIs(t, err, ErrPathNotFound)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("рекурсивное создание COMPOUND", func(t *testing.T) {
		got, err := AddTag(baseTree(), "x/y", NewByte("z", 5), Options{Recursive: true})
		require.NoError(t, err)
		v, ok := FindPayload(got, "x/y/z")
		require.True(t, ok)
		assert.Equal(t, Byte(5), v)
	})

	t.Run("рекурсивное создание LIST", func(t *testing.T) {
		got, err := AddTag(baseTree(), "extra/Items/[1]", NewString("id", "dirt"), Options{Recursive: true})
		require.NoError(t, err)

		list, ok := FindPayload(got, "extra/Items")
		require.True(t, ok)
		l := list.(List)
		assert.Equal(t, KindCompound, l.Elem)
		require.Len(t, l.Items, 2)
		assert.True(t, PayloadEqual(NewCompound(), l.Items[0]))

		id, ok := FindPayload(got, "extra/Items/1/id")
		require.True(t, ok)
		assert.Equal(t, String("dirt"), id)
	})

	t.Run("в элемент существующего списка", func(t *testing.T) {
		got, err := AddTag(baseTree(), "data/Inventory/[0]", NewByte("Count", 3), Options{})
		require.NoError(t, err)
		v, ok := FindPayload(got, "data/Inventory/[0]/Count")
		require.True(t, ok)
		assert.Equal(t, Byte(3), v)
	})

	t.Run("через скаляр", func(t *testing.T) {
		_, err := AddTag(baseTree(), "a/b", NewByte("c", 1), Options{Recursive: true})
		assert.ErrorIs(t, err, ErrNotContainer)
	})
}

func TestAddCompoundListItem(t *testing.T) {
	t.Run("заполнение пустыми элементами", func(t *testing.T) {
		root := NewCompoundTag("", NewList("list", KindEnd))

		got, err := AddCompoundListItem(root, "list", 2, []Tag{NewInt("v", 9)}, Options{})
		require.NoError(t, err)

		l := mustList(t, got, "list")
		assert.Equal(t, KindCompound, l.Elem)
		require.Len(t, l.Items, 3)
		assert.True(t, PayloadEqual(Compound{{Payload: End{}}}, l.Items[0]))
		assert.True(t, PayloadEqual(Compound{{Payload: End{}}}, l.Items[1]))
		assert.True(t, PayloadEqual(NewCompound(NewInt("v", 9)), l.Items[2]))
	})

	t.Run("занятая позиция", func(t *testing.T) {
		_, err := AddCompoundListItem(baseTree(), "data/Inventory", 0, nil, Options{})
		require.ErrorIs(t, err, ErrAlreadyExists)

		got, err := AddCompoundListItem(baseTree(), "data/Inventory", 0,
			[]Tag{NewString("id", "dirt")}, Options{Overwrite: true})
		require.NoError(t, err)
		v, _ := FindPayload(got, "data/Inventory/0/id")
		assert.Equal(t, String("dirt"), v)
	})

	t.Run("рекурсивное создание списка", func(t *testing.T) {
		_, err := AddCompoundListItem(baseTree(), "data/Entities", 0, nil, Options{})
		require.ErrorIs(t, err, ErrPathNotFound)

		got, err := AddCompoundListItem(baseTree(), "data/Entities", 0,
			[]Tag{NewString("id", "pig")}, Options{Recursive: true})
		require.NoError(t, err)
		assert.Len(t, mustList(t, got, "data/Entities").Items, 1)
	})

	t.Run("не список", func(t *testing.T) {
		_, err := AddCompoundListItem(baseTree(), "data", 0, nil, Options{})
		assert.ErrorIs(t, err, ErrNotContainer)
	})
}

func mustList(t *testing.T, root Tag, path string) List {
	t.Helper()
	p, ok := FindPayload(root, path)
	require.True(t, ok, path)
	l, ok := p.(List)
	require.True(t, ok, path)
	return l
}

func TestDeleteTag(t *testing.T) {
	t.Run("скаляр", func(t *testing.T) {
		got, err := DeleteTag(baseTree(), "a", false)
		require.NoError(t, err)
		assert.Equal(t, []string{"data"}, names(t, got))
	})

	t.Run("COMPOUND без recursive", func(t *testing.T) {
		_, err := DeleteTag(baseTree(), "data", false)
		require.ErrorIs(t, err, ErrMissingRecursiveFlag)
		assert.Contains(t, err.Error(), "recursive")
	})

	t.Run("LIST без recursive", func(t *testing.T) {
		_, err := DeleteTag(baseTree(), "data/Inventory", false)
		assert.ErrorIs(t, err, ErrMissingRecursiveFlag)
	})

	t.Run("элемент списка", func(t *testing.T) {
		got, err := DeleteTag(baseTree(), "data/Inventory/[0]", true)
		require.NoError(t, err)
		assert.Empty(t, mustList(t, got, "data/Inventory").Items)
	})

	t.Run("отсутствует", func(t *testing.T) {
		for _, path := range []string{"", "nope", "data/nope", "data/Inventory/[5]", "a/b"} {
			_, err := DeleteTag(baseTree(), path, true)
			assert.ErrorIs(t, err, ErrPathNotFound, path)
		}
	})
}

func TestEditTag(t *testing.T) {
	t.Run("переименование на месте", func(t *testing.T) {
		root := NewCompoundTag("", NewInt("a", 1), NewInt("b", 2), NewInt("c", 3))

		got, err := EditTag(root, "a", NewString("c", "x"))
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "b"}, names(t, got))
		v, _ := FindPayload(got, "c")
		assert.Equal(t, String("x"), v)
	})

	t.Run("элемент списка", func(t *testing.T) {
		item := Tag{Payload: NewCompound(NewString("id", "gold"))}
		got, err := EditTag(baseTree(), "data/Inventory/[0]", item)
		require.NoError(t, err)
		v, _ := FindPayload(got, "data/Inventory/0/id")
		assert.Equal(t, String("gold"), v)

		_, err = EditTag(baseTree(), "data/Inventory/[0]", NewInt("x", 1))
		assert.ErrorIs(t, err, ErrNotContainer)
	})

	t.Run("отсутствует", func(t *testing.T) {
		_, err := EditTag(baseTree(), "data/nope", NewInt("x", 1))
		assert.ErrorIs(t, err, ErrPathNotFound)
	})
}

func TestAlgebraDoesNotMutateInput(t *testing.T) {
	root := baseTree()
	before, err := Encode(root)
	require.NoError(t, err)

	ops := []func() (Tag, error){
		func() (Tag, error) { return AddTag(root, "data", NewByte("n", 1), Options{}) },
		func() (Tag, error) { return AddTag(root, "data", NewByte("name", 1), Options{Overwrite: true}) },
		func() (Tag, error) {
			return AddTag(root, "data/Inventory/[3]", NewByte("n", 1), Options{Recursive: true})
		},
		func() (Tag, error) {
			return AddCompoundListItem(root, "data/Inventory", 0, nil, Options{Overwrite: true})
		},
		func() (Tag, error) { return DeleteTag(root, "data/Inventory/[0]", true) },
		func() (Tag, error) { return EditTag(root, "data/name", NewString("title", "t")) },
	}

	for i, op := range ops {
		_, err := op()
		require.NoError(t, err, "операция %d", i)

		after, err := Encode(root)
		require.NoError(t, err)
		assert.Equal(t, before, after, "операция %d изменила входное дерево", i)
	}
}
