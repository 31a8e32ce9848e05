package systems

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultProvider(t *testing.T) {
	t.Parallel()

	t.Run("resolves to container slots", func(t *testing.T) {
		p := NewDefaultProvider()
		assert.Equal(t, "default", p.Name())

		r, err := Resolve[score](p, nil, Request{})
		require.NoError(t, err)
		require.NoError(t, r.Set(score{Value: 12}))

		again, err := Resolve[score](p, nil, Request{})
		require.NoError(t, err)
		assert.Equal(t, 12, again.Get().Value)
		assert.Equal(t, 1, p.Container().Len())
	})

	t.Run("clear starts over", func(t *testing.T) {
		p := NewDefaultProvider()
		r, err := Resolve[score](p, nil, Request{})
		require.NoError(t, err)
		require.NoError(t, r.Set(score{Value: 1}))

		p.Clear()

		fresh, err := Resolve[score](p, nil, Request{})
		require.NoError(t, err)
		assert.Equal(t, 0, fresh.Get().Value)
		// References taken before Clear keep the old storage.
		assert.Equal(t, 1, r.Get().Value)
	})

	t.Run("nil type", func(t *testing.T) {
		_, err := NewDefaultProvider().Resolve(nil, nil, Request{})
		require.ErrorIs(t, err, ErrUnsupportedRequest)
	})
}

func TestSystemRefProvider(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler(t)
	p := SystemRefProvider{}
	sysType := reflect.TypeFor[plainSystem]()

	t.Run("needs a scheduler", func(t *testing.T) {
		_, err := p.Resolve(sysType, nil, Request{})
		require.ErrorIs(t, err, ErrUnsupportedRequest)
	})

	t.Run("self needs a requesting system", func(t *testing.T) {
		_, err := p.Resolve(sysType, ProviderData{"self": "true"}, Request{Scheduler: s})
		require.ErrorIs(t, err, ErrUnsupportedRequest)
	})

	t.Run("self must match the requesting system", func(t *testing.T) {
		_, err := p.Resolve(sysType, ProviderData{"self": "true"}, Request{Scheduler: s, System: reflect.TypeFor[orderA]()})
		require.ErrorIs(t, err, ErrTypeMismatch)
	})

	t.Run("only structs", func(t *testing.T) {
		_, err := p.Resolve(reflect.TypeFor[int](), nil, Request{Scheduler: s})
		require.ErrorIs(t, err, ErrUnsupportedRequest)
	})

	t.Run("slot exists before construction", func(t *testing.T) {
		r, err := Resolve[plainSystem](p, nil, Request{Scheduler: s})
		require.NoError(t, err)
		assert.False(t, r.IsNull())

		self, err := Resolve[plainSystem](p, ProviderData{"self": "true"}, Request{Scheduler: s, System: sysType})
		require.NoError(t, err)
		assert.Same(t, r.GetImm(), self.GetImm())
	})
}

func TestInjectContext_Resolve(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler(t)
	ctx := InjectContext{s: s}

	u, err := ctx.Resolve(reflect.TypeFor[score](), "", nil)
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeFor[score](), u.Type())

	_, err = ctx.Resolve(reflect.TypeFor[score](), "missing", nil)
	require.ErrorIs(t, err, ErrUnsupportedRequest)

	_, err = ctx.Resolve(reflect.TypeFor[plainSystem](), "system", ProviderData{"self": "true"})
	require.ErrorIs(t, err, ErrUnsupportedRequest)

	assert.Same(t, s, ctx.Scheduler())
	assert.Nil(t, ctx.System())
}
