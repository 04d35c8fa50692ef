package dynarray

import (
	"reflect"

	"github.com/cockroachdb/errors"
)

func checkElementType[T any]() error {
	elementType := reflect.TypeOf((*T)(nil)).Elem()
	if hasPointers(elementType) {
		return errors.Wrapf(PointerElementError, "%s", elementType)
	}

	return nil
}

func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Chan, reflect.Func,
		reflect.Interface, reflect.Slice, reflect.String:
		return true
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
