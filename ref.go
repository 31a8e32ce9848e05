package systems

import (
	"fmt"
	"reflect"
)

// StorageKind describes where the value behind a Ref lives.
type StorageKind uint8

const (
	// KindNull is a reference with no backing storage.
	KindNull StorageKind = iota
	// KindInline points directly at a value.
	KindInline
	// KindInlineReadOnly points directly at a value and rejects mutable access.
	KindInlineReadOnly
	// KindIndirect delegates to another Ref.
	KindIndirect
	// KindBox points at the value held by a Box.
	KindBox
	// KindArrayElement points at one element of a fixed slice.
	KindArrayElement
	// KindListElement points at one element of a slice that may be reassigned.
	KindListElement
)

// String returns the string representation of the storage kind.
func (k StorageKind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindInline:
		return "Inline"
	case KindInlineReadOnly:
		return "InlineReadOnly"
	case KindIndirect:
		return "Indirect"
	case KindBox:
		return "Box"
	case KindArrayElement:
		return "ArrayElement"
	case KindListElement:
		return "ListElement"
	default:
		return "Unknown"
	}
}

// Box is a heap cell that can be shared between references.
type Box[T any] struct {
	Value T
}

// NewBox returns a box holding v.
func NewBox[T any](v T) *Box[T] {
	return &Box[T]{Value: v}
}

// Ref is a typed handle to a value of type T. The zero Ref is null.
//
// A Ref never owns its backing storage: the container, box or slice it was
// built from must outlive it. Refs handed to a system are valid for the
// duration of the call that received them.
type Ref[T any] struct {
	obj   any
	kind  StorageKind
	index int
}

// NewRef returns a mutable reference to *p.
func NewRef[T any](p *T) Ref[T] {
	if p == nil {
		return Ref[T]{}
	}
	return Ref[T]{obj: p, kind: KindInline}
}

// NewReadOnlyRef returns a reference to *p that rejects mutable access.
func NewReadOnlyRef[T any](p *T) Ref[T] {
	if p == nil {
		return Ref[T]{}
	}
	return Ref[T]{obj: p, kind: KindInlineReadOnly}
}

// NestedRef returns a reference that reads and writes through r.
func NestedRef[T any](r *Ref[T]) Ref[T] {
	if r == nil {
		return Ref[T]{}
	}
	return Ref[T]{obj: r, kind: KindIndirect}
}

// BoxRef returns a reference to the value held by b.
func BoxRef[T any](b *Box[T]) Ref[T] {
	if b == nil {
		return Ref[T]{}
	}
	return Ref[T]{obj: b, kind: KindBox}
}

// ArrayRef returns a reference to arr[i].
func ArrayRef[T any](arr []T, i int) (Ref[T], error) {
	if i < 0 || i >= len(arr) {
		return Ref[T]{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(arr))
	}
	return Ref[T]{obj: arr, kind: KindArrayElement, index: i}, nil
}

// ListRef returns a reference to (*list)[i]. The slice is re-read on every
// access so appends that reallocate it are observed.
func ListRef[T any](list *[]T, i int) (Ref[T], error) {
	if list == nil {
		return Ref[T]{}, ErrNullRef
	}
	if i < 0 || i >= len(*list) {
		return Ref[T]{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(*list))
	}
	return Ref[T]{obj: list, kind: KindListElement, index: i}, nil
}

// Kind returns the storage kind of the reference.
func (r Ref[T]) Kind() StorageKind {
	return r.kind
}

// IsNull reports whether the reference currently resolves to no value.
func (r Ref[T]) IsNull() bool {
	return r.ptr() == nil
}

// ReadOnly reports whether mutable access is rejected.
func (r Ref[T]) ReadOnly() bool {
	switch r.kind {
	case KindInlineReadOnly:
		return true
	case KindIndirect:
		return r.obj.(*Ref[T]).ReadOnly()
	default:
		return false
	}
}

// Get returns a copy of the value, or the zero value if the reference is null.
func (r Ref[T]) Get() T {
	if p := r.ptr(); p != nil {
		return *p
	}
	var zero T
	return zero
}

// GetMut returns a live pointer to the value.
func (r Ref[T]) GetMut() (*T, error) {
	if r.ReadOnly() {
		return nil, ErrUnsupportedOperation
	}
	p := r.ptr()
	if p == nil {
		return nil, ErrNullRef
	}
	return p, nil
}

// GetImm returns a live pointer to the value that must not be written through.
// It returns nil if the reference is null.
func (r Ref[T]) GetImm() *T {
	return r.ptr()
}

// Set writes v through the reference.
func (r Ref[T]) Set(v T) error {
	p, err := r.GetMut()
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// AsReadOnly returns a read-only reference pinned to the current location of the value.
func (r Ref[T]) AsReadOnly() Ref[T] {
	return NewReadOnlyRef(r.ptr())
}

// Untyped erases the element type.
func (r Ref[T]) Untyped() UntypedRef {
	if r.kind == KindNull {
		return UntypedRef{}
	}
	return UntypedRef{ref: r}
}

func (r Ref[T]) ptr() *T {
	switch r.kind {
	case KindInline, KindInlineReadOnly:
		return r.obj.(*T)
	case KindIndirect:
		return r.obj.(*Ref[T]).ptr()
	case KindBox:
		return &r.obj.(*Box[T]).Value
	case KindArrayElement:
		return &r.obj.([]T)[r.index]
	case KindListElement:
		l := *r.obj.(*[]T)
		if r.index >= len(l) {
			return nil
		}
		return &l[r.index]
	default:
		return nil
	}
}

func (r Ref[T]) String() string {
	return fmt.Sprintf("Ref[%v](%s)", reflect.TypeFor[T](), r.kind)
}

// erasedRef is the type-erased view used by UntypedRef.
type erasedRef interface {
	elemType() reflect.Type
	object() any
	pointer() (any, error)
	readOnly() bool
	isNull() bool
	raw() any
}

func (Ref[T]) elemType() reflect.Type {
	return reflect.TypeFor[T]()
}

func (r Ref[T]) object() any {
	return r.Get()
}

func (r Ref[T]) pointer() (any, error) {
	p, err := r.GetMut()
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r Ref[T]) readOnly() bool {
	return r.ReadOnly()
}

func (r Ref[T]) isNull() bool {
	return r.ptr() == nil
}

func (r Ref[T]) raw() any {
	return r.ptr()
}

// refField is implemented by every Ref[T] so that injected fields can be
// populated without knowing T statically.
type refField interface {
	elemType() reflect.Type
	adopt(u UntypedRef, readOnly bool) (any, error)
}

func (Ref[T]) adopt(u UntypedRef, readOnly bool) (any, error) {
	r, err := RefAs[T](u)
	if err != nil {
		return nil, err
	}
	if readOnly && !r.IsNull() {
		r = r.AsReadOnly()
	}
	return r, nil
}

var refFieldType = reflect.TypeFor[refField]()

// isRefType reports whether t is an instantiation of Ref.
func isRefType(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && t.Implements(refFieldType)
}

// pointerRef wraps a *T whose T is only known at runtime.
type pointerRef struct {
	p  reflect.Value
	ro bool
}

func (r pointerRef) elemType() reflect.Type {
	return r.p.Type().Elem()
}

func (r pointerRef) object() any {
	return r.p.Elem().Interface()
}

func (r pointerRef) pointer() (any, error) {
	if r.ro {
		return nil, ErrUnsupportedOperation
	}
	return r.p.Interface(), nil
}

func (r pointerRef) readOnly() bool {
	return r.ro
}

func (pointerRef) isNull() bool {
	return false
}

func (r pointerRef) raw() any {
	return r.p.Interface()
}

// UntypedRef is a Ref with its element type erased.
type UntypedRef struct {
	ref erasedRef
}

// UntypedPointer wraps p, which must be a non-nil pointer, as a mutable reference.
func UntypedPointer(p any) UntypedRef {
	return untypedPointer(p, false)
}

// UntypedReadOnlyPointer wraps p, which must be a non-nil pointer, as a read-only reference.
func UntypedReadOnlyPointer(p any) UntypedRef {
	return untypedPointer(p, true)
}

func untypedPointer(p any, ro bool) UntypedRef {
	v := reflect.ValueOf(p)
	if debugChecks && (v.Kind() != reflect.Pointer || v.IsNil()) {
		panic(fmt.Sprintf("systems: untyped reference needs a non-nil pointer, got %T", p))
	}
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return UntypedRef{}
	}
	return UntypedRef{ref: pointerRef{p: v, ro: ro}}
}

// Type returns the element type, or nil for a null reference.
func (u UntypedRef) Type() reflect.Type {
	if u.ref == nil {
		return nil
	}
	return u.ref.elemType()
}

// IsNull reports whether the reference has no backing storage.
func (u UntypedRef) IsNull() bool {
	return u.ref == nil || u.ref.isNull()
}

// ReadOnly reports whether mutable access is rejected.
func (u UntypedRef) ReadOnly() bool {
	return u.ref != nil && u.ref.readOnly()
}

// Object returns a copy of the current value, or nil for a null reference.
func (u UntypedRef) Object() any {
	if u.IsNull() {
		return nil
	}
	return u.ref.object()
}

// Pointer returns a live *T for the element type T.
func (u UntypedRef) Pointer() (any, error) {
	if u.IsNull() {
		return nil, ErrNullRef
	}
	return u.ref.pointer()
}

// raw returns the *T regardless of read-only state. u must not be null.
func (u UntypedRef) raw() any {
	return u.ref.raw()
}

// RefAs restores the element type of u.
func RefAs[T any](u UntypedRef) (Ref[T], error) {
	switch r := u.ref.(type) {
	case nil:
		return Ref[T]{}, nil
	case Ref[T]:
		return r, nil
	case pointerRef:
		p, ok := r.p.Interface().(*T)
		if !ok {
			return Ref[T]{}, fmt.Errorf("%w: have %v, want %v", ErrTypeMismatch, r.elemType(), reflect.TypeFor[T]())
		}
		if r.ro {
			return NewReadOnlyRef(p), nil
		}
		return NewRef(p), nil
	default:
		return Ref[T]{}, fmt.Errorf("%w: have %v, want %v", ErrTypeMismatch, u.Type(), reflect.TypeFor[T]())
	}
}
