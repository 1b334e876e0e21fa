package authz

import (
	"reflect"
	"sort"
)

// Binding maps action names to policy names for one protected entity type.
// It is owned by the consuming service.
type Binding map[string]string

// Actions returns the bound action names in sorted order
func (b Binding) Actions() []string {
	actions := make([]string, 0, len(b))
	for a := range b {
		actions = append(actions, a)
	}
	sort.Strings(actions)
	return actions
}

// PolicyFor returns the policy bound to action
func (b Binding) PolicyFor(action string) (string, bool) {
	name, ok := b[action]
	return name, ok
}

// Referenced is implemented by objects that can name themselves in audit records
type Referenced interface {
	ObjectRef() string
}

// ObjectRef returns the audit reference for obj: its ObjectRef if it has one, otherwise
// its type name. A nil object, including a typed nil pointer, has no reference.
func ObjectRef(obj any) (ref string) {
	obj = objectOrNil(obj)
	if obj == nil {
		return ""
	}
	o, ok := obj.(Referenced)
	if !ok {
		return typeName(obj)
	}
	defer func() {
		if recover() != nil {
			ref = typeName(obj)
		}
	}()
	return o.ObjectRef()
}

// objectOrNil turns a typed nil (pointer, map, slice, func, chan, interface) into an untyped nil
func objectOrNil(obj any) any {
	if obj == nil {
		return nil
	}
	v := reflect.ValueOf(obj)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		if v.IsNil() {
			return nil
		}
	}
	return obj
}
