package systems

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
)

// SystemMeta holds the scheduling metadata of a system type.
// It is computed once at registration time and never changes afterwards.
type SystemMeta struct {
	// Partition orders systems that have no Before/After relation.
	Partition Partition

	// Group is the group the system belongs to. Nil means the scheduler's
	// default group.
	Group reflect.Type

	// Before lists systems of the same group this one must precede.
	Before []reflect.Type

	// After lists systems of the same group this one must follow.
	After []reflect.Type

	// Parallel lets a group run independent children concurrently.
	Parallel bool

	// Setup enables the one-time Setup call.
	Setup bool

	// Update enables the per-tick Update call.
	Update bool
}

// DefaultMeta returns the metadata of a system that declares nothing.
func DefaultMeta() SystemMeta {
	return SystemMeta{Setup: true, Update: true}
}

// FieldMeta holds metadata about a single injectable field.
type FieldMeta struct {
	// Offset is the field offset in the struct for unsafe injection
	Offset uintptr

	// Name is the field name for debugging
	Name string

	// Kind is the type of field
	Kind FieldKind

	// FieldType is the declared type of the field
	FieldType reflect.Type

	// ElemType is the resolved resource type (T of Ref[T] or *T)
	ElemType reflect.Type

	// Tag is the parsed systems tag
	Tag TagInfo

	// ref is the zero Ref[T] used to adopt untyped references
	ref refField
}

// systemInfo is everything the scheduler derives from a system type.
type systemInfo struct {
	Type    reflect.Type
	Name    string
	Meta    SystemMeta
	Fields  []FieldMeta
	IsGroup bool
}

// analyzeSystem analyzes a system type and returns its metadata.
func analyzeSystem(systemType reflect.Type) (*systemInfo, error) {
	if systemType == nil {
		return nil, fmt.Errorf("%w: nil type", ErrNotSystem)
	}
	if systemType.Kind() == reflect.Pointer {
		systemType = systemType.Elem()
	}
	if systemType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %v is a %v, not a struct", ErrNotSystem, systemType, systemType.Kind())
	}

	ptr := reflect.PointerTo(systemType)
	info := &systemInfo{
		Type:    systemType,
		Name:    systemType.String(),
		Meta:    DefaultMeta(),
		IsGroup: ptr.Implements(groupType),
	}
	info.Meta.Setup = ptr.Implements(setuperType)
	info.Meta.Update = ptr.Implements(updaterType)

	for i := 0; i < systemType.NumField(); i++ {
		field := systemType.Field(i)
		tag := parseTag(field.Tag.Get(tagName))

		fm := FieldMeta{
			Offset:    field.Offset,
			Name:      field.Name,
			FieldType: field.Type,
			Tag:       tag,
		}

		switch {
		case field.Type == optionsType:
			fm.Kind = FieldOptions
			if err := applyOptions(&info.Meta, field.Tag); err != nil {
				return nil, fmt.Errorf("%v.%s: %w", systemType, field.Name, err)
			}

		case field.Type.Implements(markerType):
			target, kind, _ := getMarkerInfo(field.Type)
			fm.Kind = FieldMarker
			fm.ElemType = target
			switch kind {
			case MarkerGroup:
				if info.Meta.Group != nil && info.Meta.Group != target {
					return nil, fmt.Errorf("%v: declared in both %v and %v", systemType, info.Meta.Group, target)
				}
				info.Meta.Group = target
			case MarkerBefore:
				if !slices.Contains(info.Meta.Before, target) {
					info.Meta.Before = append(info.Meta.Before, target)
				}
			case MarkerAfter:
				if !slices.Contains(info.Meta.After, target) {
					info.Meta.After = append(info.Meta.After, target)
				}
			}

		case tag.Skip:
			fm.Kind = FieldPlain

		case isRefType(field.Type):
			fm.Kind = FieldRef
			fm.ref = reflect.Zero(field.Type).Interface().(refField)
			fm.ElemType = fm.ref.elemType()

		case field.Type.Kind() == reflect.Pointer && tag.Present:
			// A *T is always writable.
			if !tag.Mutable {
				return nil, fmt.Errorf("%v.%s: pointer field needs the %q modifier", systemType, field.Name, modMut)
			}
			fm.Kind = FieldPointer
			fm.ElemType = field.Type.Elem()

		default:
			fm.Kind = FieldPlain
		}

		info.Fields = append(info.Fields, fm)
	}

	return info, nil
}

// applyOptions reads the Options phantom tag into meta.
func applyOptions(meta *SystemMeta, tag reflect.StructTag) error {
	if v, ok := tag.Lookup("partition"); ok {
		p, err := parsePartition(v)
		if err != nil {
			return fmt.Errorf("partition %q: %w", v, err)
		}
		meta.Partition = p
	}
	for _, opt := range []struct {
		key string
		dst *bool
	}{
		{"parallel", &meta.Parallel},
		{"setup", &meta.Setup},
		{"update", &meta.Update},
	} {
		v, ok := tag.Lookup(opt.key)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s %q: %w", opt.key, v, err)
		}
		// Options can only switch a capability off, never on for a
		// method the type does not have.
		if opt.key == "parallel" {
			*opt.dst = b
		} else {
			*opt.dst = *opt.dst && b
		}
	}
	return nil
}

// injectable reports whether the field receives a value at construction.
func (f *FieldMeta) injectable() bool {
	return f.Kind == FieldRef || f.Kind == FieldPointer
}
