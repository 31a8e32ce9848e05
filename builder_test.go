package systems

import (
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestBuilder(t *testing.T) {
	t.Parallel()

	t.Run("bundles resources and providers", func(t *testing.T) {
		core, logs := observer.New(zap.DebugLevel)
		var hooked *Scheduler
		echo := &echoProvider{}

		bundle := NewBundle("arith").
			Resource(data{Inc: 6}).
			Provider(echo).
			System(arithGroup{}).
			System(&arithDouble{}).
			System(&arithTriple{}).
			System(&arithAdd{}).
			PostInit(func(s *Scheduler) { hooked = s })
		assert.Equal(t, "arith", bundle.Name())

		s, err := NewBuilder().
			Logger(zap.New(core)).
			Registerer(prometheus.NewRegistry()).
			Bundle(bundle).
			Resource(score{Value: 2}).
			Init()
		require.NoError(t, err)
		t.Cleanup(s.Dispose)

		assert.Same(t, s, hooked)
		assert.Equal(t, 2, GetResource[score](s).Value)
		_, ok := ProviderOf[*echoProvider](s)
		assert.True(t, ok)
		assert.Equal(t, 1, logs.FilterMessage("scheduler initialized").Len())

		s.Update()
		assert.Equal(t, 39, GetResource[data](s).Inc)
	})

	t.Run("explicit registration and default group", func(t *testing.T) {
		meta := DefaultMeta()
		meta.Partition = PartitionLate
		bundle := NewBundle("ordered").
			System(&plainSystem{}).
			SystemWith(reflect.TypeFor[orderB](), meta, nil)

		s, err := NewBuilder().
			Logger(zap.NewNop()).
			DefaultGroup(reflect.TypeFor[customDefault]()).
			Bundle(bundle).
			Init()
		require.NoError(t, err)
		t.Cleanup(s.Dispose)

		s.Update()
		assert.Equal(t, []string{"group", "plain", "B"}, GetResource[trace](s).Calls)
	})

	t.Run("unhandled handlers", func(t *testing.T) {
		var got []error
		s, err := NewBuilder().
			Logger(zap.NewNop()).
			OnUnhandled(func(err error) { got = append(got, err) }).
			Bundle(NewBundle("broken").System(failingInit{})).
			Init()
		require.NoError(t, err)
		t.Cleanup(s.Dispose)

		s.Update()
		require.Len(t, got, 1)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := NewBuilder().Logger(zap.NewNop()).DefaultGroup(reflect.TypeFor[plainSystem]()).Init()
		require.ErrorIs(t, err, ErrNotSystem)

		_, err = NewBuilder().Logger(zap.NewNop()).Bundle(NewBundle("bad").System(42)).Init()
		require.ErrorIs(t, err, ErrNotSystem)
		assert.ErrorContains(t, err, "bundle bad")

		_, err = NewBuilder().Logger(zap.NewNop()).Resource(nil).Init()
		require.ErrorIs(t, err, ErrUnsupportedRequest)
	})

	t.Run("config drives the scheduler", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Scheduler.Workers = 3
		cfg.Logging.Level = "error"
		s, err := NewBuilder().Config(cfg).Init()
		require.NoError(t, err)
		t.Cleanup(s.Dispose)
		assert.Equal(t, 3, s.workers)
		assert.False(t, s.Logger().Core().Enabled(zap.WarnLevel))
	})
}
