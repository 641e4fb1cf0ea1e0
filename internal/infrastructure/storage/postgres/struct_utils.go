package postgres

import (
	"reflect"
	"sync"
)

// ExtractDBColumns lists the "db" tags of a struct in field order.
// Called once per repository at construction time.
//
// Usage:
//
//	columns := ExtractDBColumns[entity.StockBalance]()
//	// Returns: ["product_id", "branch_id", "current_stock", "updated_at"]
func ExtractDBColumns[T any]() []string {
	var zero T
	meta := typeFields(reflect.TypeOf(zero))
	cols := make([]string, len(meta))
	for i, f := range meta {
		cols[i] = f.dbTag
	}
	return cols
}

type fieldInfo struct {
	index []int
	dbTag string
}

// typeCache holds field metadata per struct type.
var typeCache sync.Map // map[reflect.Type][]fieldInfo

func typeFields(t reflect.Type) []fieldInfo {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := typeCache.Load(t); ok {
		return cached.([]fieldInfo)
	}

	var fields []fieldInfo
	if t.Kind() == reflect.Struct {
		for _, f := range reflect.VisibleFields(t) {
			if f.Anonymous {
				continue
			}
			tag := f.Tag.Get("db")
			if tag == "" || tag == "-" {
				continue
			}
			fields = append(fields, fieldInfo{index: f.Index, dbTag: tag})
		}
	}

	typeCache.Store(t, fields)
	return fields
}

// StructToMap converts a struct to a column map using "db" tags, including
// fields of embedded structs.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	fields := typeFields(rv.Type())
	res := make(map[string]any, len(fields))
	for _, f := range fields {
		res[f.dbTag] = rv.FieldByIndex(f.index).Interface()
	}
	return res
}
