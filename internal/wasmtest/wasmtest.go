// Package wasmtest assembles tiny WebAssembly binaries for tests.
package wasmtest

const (
	secType     = 0x01
	secImport   = 0x02
	secFunction = 0x03
	secMemory   = 0x05
	secExport   = 0x07
	secCode     = 0x0a
	secData     = 0x0b

	kindFunc   = 0x00
	kindMemory = 0x02

	i32 = 0x7f
	i64 = 0x7e
)

var header = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// Empty is a valid module with no sections.
func Empty() []byte {
	return append([]byte(nil), header...)
}

// Invalid is not a WebAssembly binary.
func Invalid() []byte {
	return []byte("not wasm")
}

// Trap exports an _initialize that executes unreachable.
func Trap() []byte {
	return module(
		section(secType, vec(funcType(nil, nil))),
		section(secFunction, vec([]byte{0x00})),
		section(secExport, vec(export("_initialize", kindFunc, 0))),
		section(secCode, vec(body(0x00))), // unreachable
	)
}

// Answer exports a no-op _initialize and answer() returning i32 42.
func Answer() []byte {
	return module(
		section(secType, vec(funcType(nil, nil), funcType(nil, []byte{i32}))),
		section(secFunction, vec([]byte{0x00}, []byte{0x01})),
		section(secExport, vec(
			export("_initialize", kindFunc, 0),
			export("answer", kindFunc, 1),
		)),
		section(secCode, vec(
			body(),
			body(0x41, 0x2a), // i32.const 42
		)),
	)
}

// Spin exports spin(), which loops forever, and answer() returning i32 42.
func Spin() []byte {
	return module(
		section(secType, vec(funcType(nil, nil), funcType(nil, []byte{i32}))),
		section(secFunction, vec([]byte{0x00}, []byte{0x01})),
		section(secExport, vec(
			export("spin", kindFunc, 0),
			export("answer", kindFunc, 1),
		)),
		section(secCode, vec(
			body(0x03, 0x40, 0x0c, 0x00, 0x0b), // loop; br 0; end
			body(0x41, 0x2a),                   // i32.const 42
		)),
	)
}

// Echo exports memory, allocate(i32) i32 returning offset 1024, and
// echo(i64) i64 returning its packed pointer/length argument unchanged.
func Echo() []byte {
	return module(
		section(secType, vec(
			funcType([]byte{i32}, []byte{i32}),
			funcType([]byte{i64}, []byte{i64}),
		)),
		section(secFunction, vec([]byte{0x00}, []byte{0x01})),
		section(secMemory, vec([]byte{0x00, 0x01})),
		section(secExport, vec(
			export("memory", kindMemory, 0),
			export("allocate", kindFunc, 0),
			export("echo", kindFunc, 1),
		)),
		section(secCode, vec(
			body(0x41, 0x80, 0x08), // i32.const 1024
			body(0x20, 0x00),       // local.get 0
		)),
	)
}

// Logger imports reglet.log_message and calls it from _initialize with
// payload, which is placed at offset 0 of its memory.
func Logger(payload string) []byte {
	return module(
		section(secType, vec(
			funcType([]byte{i64}, nil),
			funcType(nil, nil),
		)),
		section(secImport, vec(importFunc("reglet", "log_message", 0))),
		section(secFunction, vec([]byte{0x01})),
		section(secMemory, vec([]byte{0x00, 0x01})),
		section(secExport, vec(
			export("memory", kindMemory, 0),
			export("_initialize", kindFunc, 1),
		)),
		section(secCode, vec(body(
			cat([]byte{0x42}, sleb(int64(len(payload))), []byte{0x10, 0x00})..., // i64.const len; call 0
		))),
		section(secData, vec(cat(
			[]byte{0x00, 0x41, 0x00, 0x0b}, // memory 0, offset i32.const 0
			name(payload),
		))),
	)
}

func module(sections ...[]byte) []byte {
	return cat(append([][]byte{header}, sections...)...)
}

func section(id byte, content []byte) []byte {
	return cat([]byte{id}, uleb(uint64(len(content))), content)
}

func vec(items ...[]byte) []byte {
	return cat(append([][]byte{uleb(uint64(len(items)))}, items...)...)
}

func funcType(params, results []byte) []byte {
	return cat([]byte{0x60}, uleb(uint64(len(params))), params, uleb(uint64(len(results))), results)
}

func export(n string, kind byte, index uint64) []byte {
	return cat(name(n), []byte{kind}, uleb(index))
}

func importFunc(mod, n string, typeIndex uint64) []byte {
	return cat(name(mod), name(n), []byte{kindFunc}, uleb(typeIndex))
}

// body wraps instructions in a function body with no locals.
func body(instrs ...byte) []byte {
	code := cat([]byte{0x00}, instrs, []byte{0x0b})
	return cat(uleb(uint64(len(code))), code)
}

func name(s string) []byte {
	return cat(uleb(uint64(len(s))), []byte(s))
}

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
