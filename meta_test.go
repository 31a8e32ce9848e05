package systems

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type metaGroup struct{}

func (metaGroup) UpdateChildren(GroupContext) {}

type metaSystem struct {
	_       InGroup[metaGroup]
	_       Before[orderA]
	_       Before[orderA]
	_       After[*orderB]
	_       Options      `partition:"early" parallel:"true"`
	Score   Ref[score]   `systems:"mut"`
	Health  *health      `systems:"mut,opt"`
	Untyped *health
	Ignored Ref[counter] `systems:"-"`
	Count   int
}

func (*metaSystem) Update() {}

type twoGroups struct {
	_ InGroup[metaGroup]
	_ InGroup[arithGroup]
}

type badPartition struct {
	_ Options `partition:"soon"`
}

type badFlag struct {
	_ Options `update:"maybe"`
}

type updateOff struct {
	_ Options `update:"false" setup:"true"`
}

func (*updateOff) Update() {}

func TestAnalyzeSystem(t *testing.T) {
	t.Parallel()

	t.Run("markers and fields", func(t *testing.T) {
		info, err := analyzeSystem(reflect.TypeFor[*metaSystem]())
		require.NoError(t, err)

		assert.Equal(t, reflect.TypeFor[metaSystem](), info.Type)
		assert.False(t, info.IsGroup)
		assert.Equal(t, SystemMeta{
			Partition: PartitionEarly,
			Group:     reflect.TypeFor[metaGroup](),
			Before:    []reflect.Type{reflect.TypeFor[orderA]()},
			After:     []reflect.Type{reflect.TypeFor[orderB]()},
			Parallel:  true,
			Setup:     false,
			Update:    true,
		}, info.Meta)

		kinds := map[string]FieldKind{}
		for _, f := range info.Fields {
			if f.Name != "_" {
				kinds[f.Name] = f.Kind
			}
		}
		assert.Equal(t, map[string]FieldKind{
			"Score":   FieldRef,
			"Health":  FieldPointer,
			"Untyped": FieldPlain,
			"Ignored": FieldPlain,
			"Count":   FieldPlain,
		}, kinds)

		for _, f := range info.Fields {
			switch f.Name {
			case "Score":
				assert.Equal(t, reflect.TypeFor[score](), f.ElemType)
				assert.True(t, f.Tag.Mutable)
				assert.True(t, f.injectable())
			case "Health":
				assert.Equal(t, reflect.TypeFor[health](), f.ElemType)
				assert.True(t, f.Tag.Optional)
			}
		}
	})

	t.Run("groups are detected", func(t *testing.T) {
		info, err := analyzeSystem(reflect.TypeFor[metaGroup]())
		require.NoError(t, err)
		assert.True(t, info.IsGroup)
		assert.False(t, info.Meta.Update)

		info, err = analyzeSystem(rootGroupType)
		require.NoError(t, err)
		assert.True(t, info.IsGroup)
		assert.False(t, info.Meta.Setup)
	})

	t.Run("options only switch capabilities off", func(t *testing.T) {
		info, err := analyzeSystem(reflect.TypeFor[updateOff]())
		require.NoError(t, err)
		assert.False(t, info.Meta.Update)
		assert.False(t, info.Meta.Setup)
	})

	t.Run("invalid declarations", func(t *testing.T) {
		_, err := analyzeSystem(reflect.TypeFor[twoGroups]())
		require.Error(t, err)

		_, err = analyzeSystem(reflect.TypeFor[badPartition]())
		require.Error(t, err)

		_, err = analyzeSystem(reflect.TypeFor[badFlag]())
		require.Error(t, err)

		_, err = analyzeSystem(reflect.TypeFor[[]int]())
		require.ErrorIs(t, err, ErrNotSystem)
	})
}

func TestGetMarkerInfo(t *testing.T) {
	t.Parallel()

	target, kind, ok := getMarkerInfo(reflect.TypeFor[After[*orderB]]())
	require.True(t, ok)
	assert.Equal(t, reflect.TypeFor[orderB](), target)
	assert.Equal(t, MarkerAfter, kind)
	assert.Equal(t, "After", kind.String())

	_, _, ok = getMarkerInfo(reflect.TypeFor[Options]())
	assert.False(t, ok)
}

func TestParsePartition(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Partition{
		"early":   PartitionEarly,
		"LATE":    PartitionLate,
		"default": PartitionDefault,
		"":        PartitionDefault,
		" 42 ":    42,
		"-7":      -7,
	} {
		got, err := parsePartition(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := parsePartition("soon")
	require.Error(t, err)

	assert.Equal(t, "early", partitionName(PartitionEarly))
	assert.Equal(t, "5", partitionName(5))
}
