package systems

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type position struct {
	X, Y float64
}

func TestRef_Kinds(t *testing.T) {
	t.Parallel()

	t.Run("zero value is null", func(t *testing.T) {
		var r Ref[position]
		assert.Equal(t, KindNull, r.Kind())
		assert.True(t, r.IsNull())
		assert.Equal(t, position{}, r.Get())
		assert.Nil(t, r.GetImm())

		_, err := r.GetMut()
		require.ErrorIs(t, err, ErrNullRef)
		require.ErrorIs(t, r.Set(position{X: 1}), ErrNullRef)
	})

	t.Run("inline reads and writes through", func(t *testing.T) {
		v := position{X: 1}
		r := NewRef(&v)
		assert.Equal(t, KindInline, r.Kind())

		p, err := r.GetMut()
		require.NoError(t, err)
		p.Y = 2
		assert.Equal(t, position{X: 1, Y: 2}, v)

		require.NoError(t, r.Set(position{X: 5}))
		assert.Equal(t, 5.0, v.X)
		assert.Same(t, &v, r.GetImm())
	})

	t.Run("nil pointer gives a null ref", func(t *testing.T) {
		assert.True(t, NewRef[position](nil).IsNull())
		assert.True(t, NewReadOnlyRef[position](nil).IsNull())
		assert.True(t, BoxRef[position](nil).IsNull())
		assert.True(t, NestedRef[position](nil).IsNull())
	})

	t.Run("read only rejects mutable access", func(t *testing.T) {
		v := position{X: 3}
		r := NewReadOnlyRef(&v)
		assert.True(t, r.ReadOnly())
		assert.Equal(t, 3.0, r.Get().X)

		_, err := r.GetMut()
		require.ErrorIs(t, err, ErrUnsupportedOperation)
		require.ErrorIs(t, r.Set(position{}), ErrUnsupportedOperation)
		assert.Equal(t, 3.0, v.X)
	})

	t.Run("indirect follows the inner ref", func(t *testing.T) {
		a, b := position{X: 1}, position{X: 2}
		inner := NewRef(&a)
		r := NestedRef(&inner)
		assert.Equal(t, KindIndirect, r.Kind())
		assert.Equal(t, 1.0, r.Get().X)

		inner = NewRef(&b)
		assert.Equal(t, 2.0, r.Get().X)

		inner = NewReadOnlyRef(&b)
		assert.True(t, r.ReadOnly())
		_, err := r.GetMut()
		require.ErrorIs(t, err, ErrUnsupportedOperation)
	})

	t.Run("box is shared", func(t *testing.T) {
		box := NewBox(position{X: 1})
		r1, r2 := BoxRef(box), BoxRef(box)
		require.NoError(t, r1.Set(position{X: 9}))
		assert.Equal(t, 9.0, r2.Get().X)
		assert.Equal(t, 9.0, box.Value.X)
	})

	t.Run("read only view is pinned", func(t *testing.T) {
		v := position{X: 4}
		ro := NewRef(&v).AsReadOnly()
		assert.Equal(t, KindInlineReadOnly, ro.Kind())
		v.X = 7
		assert.Equal(t, 7.0, ro.Get().X)
	})
}

func TestRef_Elements(t *testing.T) {
	t.Parallel()

	t.Run("array element", func(t *testing.T) {
		arr := []int{1, 2, 3}
		r, err := ArrayRef(arr, 1)
		require.NoError(t, err)
		assert.Equal(t, KindArrayElement, r.Kind())
		require.NoError(t, r.Set(20))
		assert.Equal(t, []int{1, 20, 3}, arr)
	})

	t.Run("array index is checked", func(t *testing.T) {
		_, err := ArrayRef([]int{1}, 1)
		require.ErrorIs(t, err, ErrIndexOutOfRange)
		_, err = ArrayRef([]int{1}, -1)
		require.ErrorIs(t, err, ErrIndexOutOfRange)
	})

	t.Run("list element follows reallocation", func(t *testing.T) {
		list := []int{1, 2}
		r, err := ListRef(&list, 1)
		require.NoError(t, err)
		assert.Equal(t, KindListElement, r.Kind())

		list = append(list, 3, 4, 5, 6, 7, 8)
		require.NoError(t, r.Set(42))
		assert.Equal(t, 42, list[1])
	})

	t.Run("list shrinking nulls the ref", func(t *testing.T) {
		list := []int{1, 2}
		r, err := ListRef(&list, 1)
		require.NoError(t, err)
		list = list[:1]
		assert.True(t, r.IsNull())
		assert.Equal(t, 0, r.Get())
	})

	t.Run("list index is checked", func(t *testing.T) {
		list := []int{}
		_, err := ListRef(&list, 0)
		require.ErrorIs(t, err, ErrIndexOutOfRange)
		_, err = ListRef[int](nil, 0)
		require.ErrorIs(t, err, ErrNullRef)
	})
}

func TestUntypedRef(t *testing.T) {
	t.Parallel()

	t.Run("round trip keeps the storage", func(t *testing.T) {
		v := position{X: 1}
		u := NewRef(&v).Untyped()
		assert.Equal(t, reflect.TypeFor[position](), u.Type())
		assert.False(t, u.IsNull())
		assert.Equal(t, position{X: 1}, u.Object())

		r, err := RefAs[position](u)
		require.NoError(t, err)
		require.NoError(t, r.Set(position{X: 2}))
		assert.Equal(t, 2.0, v.X)
	})

	t.Run("wrong element type", func(t *testing.T) {
		v := position{}
		_, err := RefAs[int](NewRef(&v).Untyped())
		require.ErrorIs(t, err, ErrTypeMismatch)

		_, err = RefAs[int](UntypedPointer(&v))
		require.ErrorIs(t, err, ErrTypeMismatch)
	})

	t.Run("null", func(t *testing.T) {
		var u UntypedRef
		assert.True(t, u.IsNull())
		assert.Nil(t, u.Type())
		assert.Nil(t, u.Object())
		_, err := u.Pointer()
		require.ErrorIs(t, err, ErrNullRef)

		r, err := RefAs[position](u)
		require.NoError(t, err)
		assert.True(t, r.IsNull())
	})

	t.Run("read only pointer", func(t *testing.T) {
		v := position{X: 3}
		u := UntypedReadOnlyPointer(&v)
		assert.True(t, u.ReadOnly())
		_, err := u.Pointer()
		require.ErrorIs(t, err, ErrUnsupportedOperation)

		r, err := RefAs[position](u)
		require.NoError(t, err)
		assert.True(t, r.ReadOnly())
		assert.Equal(t, 3.0, r.Get().X)
	})

	t.Run("pointer gives the live value", func(t *testing.T) {
		v := position{}
		p, err := UntypedPointer(&v).Pointer()
		require.NoError(t, err)
		p.(*position).X = 8
		assert.Equal(t, 8.0, v.X)
	})
}
