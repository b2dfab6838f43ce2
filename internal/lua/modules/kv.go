package modules

import (
	"context"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/lightcycle/internal/lua/exec"
	"github.com/dokzlo13/lightcycle/internal/storage/kv"
)

const bucketTypeName = "kv_bucket"

// KVModule gives scripts named key-value buckets on the configured cache backends.
//
// Every bucket method follows the control-function convention: (result, nil) on success,
// (fallback, error_string) on a backend failure.
type KVModule struct {
	manager        *kv.Manager
	defaultBackend kv.Backend
}

// NewKVModule creates a new KV module. Buckets use defaultBackend unless a script asks for another.
func NewKVModule(manager *kv.Manager, defaultBackend kv.Backend) *KVModule {
	return &KVModule{manager: manager, defaultBackend: defaultBackend}
}

// Loader is the module loader for Lua.
func (m *KVModule) Loader(L *lua.LState) int {
	mt := L.NewTypeMetatable(bucketTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"store":  bucketOp(lua.LFalse, storeValue),
		"get":    bucketOp(lua.LNil, getValue),
		"exists": bucketOp(lua.LFalse, keyExists),
		"delete": bucketOp(lua.LFalse, deleteKey),
		"keys":   bucketOp(lua.LNil, listKeys),
		"clear":  bucketOp(lua.LFalse, clearBucket),
	}))

	mod := L.NewTable()
	L.SetField(mod, "bucket", L.NewFunction(m.bucket))
	L.Push(mod)
	return 1
}

// bucket(name, { backend = "memory" | "sqlite" | "redis" }) -> (bucket, err)
func (m *KVModule) bucket(L *lua.LState) int {
	name := L.CheckString(1)

	backend := m.defaultBackend
	if opts := L.OptTable(2, nil); opts != nil {
		if b := L.GetField(opts, "backend"); b != lua.LNil {
			parsed, err := kv.ParseBackend(b.String())
			if err != nil {
				L.ArgError(2, err.Error())
				return 0
			}
			backend = parsed
		}
	}

	b, err := m.manager.Bucket(name, backend)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}

	ud := L.NewUserData()
	ud.Value = b
	L.SetMetatable(ud, L.GetTypeMetatable(bucketTypeName))
	L.Push(ud)
	L.Push(lua.LNil)
	return 2
}

// bucketFunc runs one bucket operation. Arguments after self start at stack index 2.
type bucketFunc func(ctx context.Context, L *lua.LState, b kv.Bucket) (lua.LValue, error)

// bucketOp adapts fn to a method, pushing fallback and the error text when fn fails.
func bucketOp(fallback lua.LValue, fn bucketFunc) lua.LGFunction {
	return func(L *lua.LState) int {
		ud := L.CheckUserData(1)
		b, ok := ud.Value.(kv.Bucket)
		if !ok {
			L.ArgError(1, "bucket expected")
			return 0
		}

		v, err := fn(luaContext(L), L, b)
		if err != nil {
			log.Warn().Err(err).Str("bucket", b.Name()).Msg("Script bucket operation failed")
			L.Push(fallback)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(v)
		L.Push(lua.LNil)
		return 2
	}
}

// store(key, value) -> ok
func storeValue(ctx context.Context, L *lua.LState, b kv.Bucket) (lua.LValue, error) {
	if err := b.Store(ctx, L.CheckString(2), exec.LuaToGo(L.Get(3))); err != nil {
		return nil, err
	}
	return lua.LTrue, nil
}

// get(key) -> value | nil
func getValue(ctx context.Context, L *lua.LState, b kv.Bucket) (lua.LValue, error) {
	v, err := b.Get(ctx, L.CheckString(2))
	if err != nil {
		return nil, err
	}
	return exec.GoToLua(L, v), nil
}

// exists(key) -> bool
func keyExists(ctx context.Context, L *lua.LState, b kv.Bucket) (lua.LValue, error) {
	ok, err := b.Exists(ctx, L.CheckString(2))
	return lua.LBool(ok), err
}

// delete(key) -> deleted
func deleteKey(ctx context.Context, L *lua.LState, b kv.Bucket) (lua.LValue, error) {
	ok, err := b.Delete(ctx, L.CheckString(2))
	return lua.LBool(ok), err
}

// keys() -> { key, ... }
func listKeys(ctx context.Context, L *lua.LState, b kv.Bucket) (lua.LValue, error) {
	keys, err := b.Keys(ctx)
	if err != nil {
		return nil, err
	}
	return exec.GoToLua(L, keys), nil
}

// clear() -> ok
func clearBucket(ctx context.Context, _ *lua.LState, b kv.Bucket) (lua.LValue, error) {
	if err := b.Clear(ctx); err != nil {
		return nil, err
	}
	return lua.LTrue, nil
}

// luaContext returns the context of the current work item.
func luaContext(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
