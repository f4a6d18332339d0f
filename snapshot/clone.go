package snapshot

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrNotCloneable is returned when a value holds something that cannot be
// duplicated: channels, functions, unsafe pointers, or structs with unexported
// fields such as locks and file handles.
var ErrNotCloneable = errors.New("value is not cloneable")

// Cloner lets a field value provide its own deep copy. A Cloner that returns
// an error is aliased instead of copied.
type Cloner interface {
	Clone() (any, error)
}

// DeepCopy returns an independent copy of v. Values implementing Cloner are
// asked to copy themselves; everything else is copied structurally.
func DeepCopy(v any) (out any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = fmt.Errorf("copy panicked: %v", rec)
		}
	}()
	if v == nil {
		return nil, nil
	}
	c := &copier{seen: make(map[uintptr]reflect.Value)}
	copied, err := c.copy(reflect.ValueOf(v))
	if err != nil {
		return nil, err
	}
	return copied.Interface(), nil
}

type copier struct {
	// pointers already copied, so shared and cyclic references stay shared in the copy
	seen map[uintptr]reflect.Value
}

func (c *copier) copy(v reflect.Value) (reflect.Value, error) {
	if v.IsValid() && v.CanInterface() {
		if cl, ok := v.Interface().(Cloner); ok && !(v.Kind() == reflect.Pointer && v.IsNil()) {
			copied, err := cl.Clone()
			if err != nil {
				return reflect.Value{}, err
			}
			if copied == nil {
				return reflect.Zero(v.Type()), nil
			}
			cv := reflect.ValueOf(copied)
			if !cv.Type().AssignableTo(v.Type()) {
				return reflect.Value{}, fmt.Errorf("clone of %s returned %s", v.Type(), cv.Type())
			}
			return cv, nil
		}
	}

	switch v.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128, reflect.String:
		return v, nil

	case reflect.Pointer:
		if v.IsNil() {
			return v, nil
		}
		if prev, ok := c.seen[v.Pointer()]; ok {
			return prev, nil
		}
		dst := reflect.New(v.Type().Elem())
		c.seen[v.Pointer()] = dst
		elem, err := c.copy(v.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		dst.Elem().Set(elem)
		return dst, nil

	case reflect.Interface:
		if v.IsNil() {
			return v, nil
		}
		inner, err := c.copy(v.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		dst := reflect.New(v.Type()).Elem()
		dst.Set(inner)
		return dst, nil

	case reflect.Slice:
		if v.IsNil() {
			return v, nil
		}
		dst := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			elem, err := c.copy(v.Index(i))
			if err != nil {
				return reflect.Value{}, err
			}
			dst.Index(i).Set(elem)
		}
		return dst, nil

	case reflect.Array:
		dst := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			elem, err := c.copy(v.Index(i))
			if err != nil {
				return reflect.Value{}, err
			}
			dst.Index(i).Set(elem)
		}
		return dst, nil

	case reflect.Map:
		if v.IsNil() {
			return v, nil
		}
		dst := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			key, err := c.copy(iter.Key())
			if err != nil {
				return reflect.Value{}, err
			}
			val, err := c.copy(iter.Value())
			if err != nil {
				return reflect.Value{}, err
			}
			dst.SetMapIndex(key, val)
		}
		return dst, nil

	case reflect.Struct:
		dst := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			if !v.Type().Field(i).IsExported() {
				return reflect.Value{}, fmt.Errorf("%w: %s has unexported field %s",
					ErrNotCloneable, v.Type(), v.Type().Field(i).Name)
			}
			field, err := c.copy(v.Field(i))
			if err != nil {
				return reflect.Value{}, err
			}
			dst.Field(i).Set(field)
		}
		return dst, nil

	default:
		return reflect.Value{}, fmt.Errorf("%w: kind %s", ErrNotCloneable, v.Kind())
	}
}
