// Package exec provides the Executor interface for thread-safe Lua execution.
// This package is separate from lua to avoid import cycles with modules.
package exec

import (
	"context"
	"fmt"

	glua "github.com/yuin/gopher-lua"
)

// Executor provides thread-safe Lua execution and state access.
type Executor interface {
	// Do queues work to be executed on the Lua VM
	Do(ctx context.Context, work func(ctx context.Context)) bool
	// LState returns the underlying Lua state (for use within Do callbacks only)
	LState() *glua.LState
}

// CallHandler calls a Lua handler with a single table argument built from data.
// MUST be called from within an Executor.Do() callback.
func CallHandler(L *glua.LState, fn *glua.LFunction, data map[string]any) error {
	return L.CallByParam(glua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, MapToLuaTable(L, data))
}

// MapToLuaTable converts a Go map to a Lua table
func MapToLuaTable(L *glua.LState, m map[string]any) *glua.LTable {
	tbl := L.NewTable()
	for k, v := range m {
		L.SetField(tbl, k, GoToLua(L, v))
	}
	return tbl
}

// LuaTableToMap converts the string-keyed part of a Lua table to a Go map
func LuaTableToMap(tbl *glua.LTable) map[string]any {
	m := make(map[string]any)
	tbl.ForEach(func(k, v glua.LValue) {
		if ks, ok := k.(glua.LString); ok {
			m[string(ks)] = LuaToGo(v)
		}
	})
	return m
}

// GoToLua converts a Go value to a Lua value
func GoToLua(L *glua.LState, v any) glua.LValue {
	switch val := v.(type) {
	case nil:
		return glua.LNil
	case bool:
		return glua.LBool(val)
	case int:
		return glua.LNumber(val)
	case int64:
		return glua.LNumber(val)
	case float64:
		return glua.LNumber(val)
	case string:
		return glua.LString(val)
	case []string:
		tbl := L.NewTable()
		for i, item := range val {
			tbl.RawSetInt(i+1, glua.LString(item))
		}
		return tbl
	case []any:
		tbl := L.NewTable()
		for i, item := range val {
			tbl.RawSetInt(i+1, GoToLua(L, item))
		}
		return tbl
	case map[string]any:
		return MapToLuaTable(L, val)
	default:
		return glua.LString(fmt.Sprintf("%v", v))
	}
}

// LuaToGo converts a Lua value to a Go value. Tables with only positive integer keys become
// slices, other tables become maps.
func LuaToGo(v glua.LValue) any {
	switch val := v.(type) {
	case glua.LString:
		return string(val)
	case glua.LNumber:
		return float64(val)
	case glua.LBool:
		return bool(val)
	case *glua.LTable:
		isArray := true
		maxIdx := 0
		val.ForEach(func(k, _ glua.LValue) {
			num, ok := k.(glua.LNumber)
			if !ok || num < 1 || float64(num) != float64(int(num)) {
				isArray = false
				return
			}
			if int(num) > maxIdx {
				maxIdx = int(num)
			}
		})

		if isArray && maxIdx > 0 {
			arr := make([]any, maxIdx)
			val.ForEach(func(k, v glua.LValue) {
				arr[int(k.(glua.LNumber))-1] = LuaToGo(v)
			})
			return arr
		}

		obj := make(map[string]any)
		val.ForEach(func(k, v glua.LValue) {
			obj[glua.LVAsString(k)] = LuaToGo(v)
		})
		return obj
	case *glua.LNilType:
		return nil
	default:
		return v.String()
	}
}
