// The ffi binary builds the c-shared embedding boundary of matchbox:
//
//	go build -buildmode=c-shared -o libmatchbox.so ./ffi
//
// Every object crosses the boundary as an opaque uintptr handle paired
// with an explicit *_free call. Failures return false (or -1) and copy a
// human-readable message into the caller-provided error buffer, truncated
// to the provided length; the length out-parameter receives the number of
// bytes written. UUIDs cross as 36-byte hyphenated strings.
//
// Go's pointer-passing rules forbid handing out pointers into engine
// memory, so variable-size results (field names, matched values, capture
// pairs) are copied into caller-provided buffers and enumerated by index
// instead of returned as interior pointer arrays. For the same reason the
// tagged value union is spelled as one entry point per tag.
package main

/*
#include <stdbool.h>
#include <stddef.h>
#include <stdint.h>
*/
import "C"

import (
	"runtime/cgo"
	"sort"
	"unsafe"

	"github.com/google/uuid"

	matchbox "github.com/solatis/matchbox"
	"github.com/solatis/matchbox/internal/types"
)

func writeErr(errbuf *C.uchar, errbufLen *C.size_t, msg string) {
	if errbuf == nil || errbufLen == nil {
		return
	}
	n := len(msg)
	if n > types.ErrBufMaxLen {
		n = types.ErrBufMaxLen
	}
	if avail := int(*errbufLen); n > avail {
		n = avail
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(errbuf)), n)
	copy(dst, msg[:n])
	*errbufLen = C.size_t(n)
}

// writeBytes copies b into the caller's buffer. A null buffer or a short
// length is a size query: the required size is written to bufLen and the
// copy is skipped.
func writeBytes(buf *C.uchar, bufLen *C.size_t, b []byte) bool {
	if bufLen == nil {
		return false
	}
	if buf == nil || int(*bufLen) < len(b) {
		*bufLen = C.size_t(len(b))
		return false
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(buf)), len(b))
	copy(dst, b)
	*bufLen = C.size_t(len(b))
	return true
}

//export schema_new
func schema_new() C.uintptr_t {
	return C.uintptr_t(cgo.NewHandle(matchbox.NewSchema()))
}

//export schema_free
func schema_free(h C.uintptr_t) {
	cgo.Handle(h).Delete()
}

//export schema_add_field
func schema_add_field(h C.uintptr_t, field *C.char, typ C.int) {
	s := cgo.Handle(h).Value().(*matchbox.Schema)
	s.AddField(C.GoString(field), matchbox.FieldType(typ))
}

//export router_new
func router_new(schemaHandle C.uintptr_t) C.uintptr_t {
	s := cgo.Handle(schemaHandle).Value().(*matchbox.Schema)
	return C.uintptr_t(cgo.NewHandle(matchbox.NewRouter(s)))
}

//export router_free
func router_free(h C.uintptr_t) {
	cgo.Handle(h).Delete()
}

//export router_add_matcher
func router_add_matcher(h C.uintptr_t, priority C.uint64_t, uuidStr, atc *C.char, errbuf *C.uchar, errbufLen *C.size_t) C.bool {
	r := cgo.Handle(h).Value().(*matchbox.Router)

	id, err := uuid.Parse(C.GoString(uuidStr))
	if err != nil {
		writeErr(errbuf, errbufLen, "invalid UUID format")
		return false
	}
	if err := r.AddMatcher(uint64(priority), id, C.GoString(atc)); err != nil {
		writeErr(errbuf, errbufLen, err.Error())
		return false
	}
	return true
}

//export router_remove_matcher
func router_remove_matcher(h C.uintptr_t, priority C.uint64_t, uuidStr *C.char) C.bool {
	r := cgo.Handle(h).Value().(*matchbox.Router)
	id, err := uuid.Parse(C.GoString(uuidStr))
	if err != nil {
		return false
	}
	return C.bool(r.RemoveMatcher(uint64(priority), id))
}

//export router_enable_prefilter
func router_enable_prefilter(h C.uintptr_t, field *C.char, errbuf *C.uchar, errbufLen *C.size_t) C.bool {
	r := cgo.Handle(h).Value().(*matchbox.Router)
	if err := r.EnablePrefilter(C.GoString(field)); err != nil {
		writeErr(errbuf, errbufLen, err.Error())
		return false
	}
	return true
}

//export router_execute
func router_execute(routerHandle, contextHandle C.uintptr_t) C.bool {
	r := cgo.Handle(routerHandle).Value().(*matchbox.Router)
	ctx := cgo.Handle(contextHandle).Value().(*matchbox.Context)
	return C.bool(r.Execute(ctx))
}

//export router_get_fields_count
func router_get_fields_count(h C.uintptr_t) C.size_t {
	r := cgo.Handle(h).Value().(*matchbox.Router)
	return C.size_t(len(r.Fields()))
}

//export router_get_field
func router_get_field(h C.uintptr_t, i C.size_t, buf *C.uchar, bufLen *C.size_t) C.bool {
	r := cgo.Handle(h).Value().(*matchbox.Router)
	fields := r.Fields()
	if int(i) >= len(fields) {
		return false
	}
	return C.bool(writeBytes(buf, bufLen, []byte(fields[i])))
}

//export context_new
func context_new(schemaHandle C.uintptr_t) C.uintptr_t {
	s := cgo.Handle(schemaHandle).Value().(*matchbox.Schema)
	return C.uintptr_t(cgo.NewHandle(matchbox.NewContext(s)))
}

//export context_new_for_router
func context_new_for_router(routerHandle C.uintptr_t) C.uintptr_t {
	r := cgo.Handle(routerHandle).Value().(*matchbox.Router)
	return C.uintptr_t(cgo.NewHandle(matchbox.NewRouterContext(r)))
}

//export context_free
func context_free(h C.uintptr_t) {
	cgo.Handle(h).Delete()
}

//export context_reset
func context_reset(h C.uintptr_t) {
	cgo.Handle(h).Value().(*matchbox.Context).Reset()
}

func contextAdd(h C.uintptr_t, field *C.char, v matchbox.Value, errbuf *C.uchar, errbufLen *C.size_t) C.bool {
	ctx := cgo.Handle(h).Value().(*matchbox.Context)
	if err := ctx.AddValue(C.GoString(field), v); err != nil {
		writeErr(errbuf, errbufLen, err.Error())
		return false
	}
	return true
}

//export context_add_value_str
func context_add_value_str(h C.uintptr_t, field *C.char, ptr *C.uchar, length C.size_t, errbuf *C.uchar, errbufLen *C.size_t) C.bool {
	b := C.GoBytes(unsafe.Pointer(ptr), C.int(length))
	return contextAdd(h, field, matchbox.StringValue(b), errbuf, errbufLen)
}

//export context_add_value_int
func context_add_value_int(h C.uintptr_t, field *C.char, v C.int64_t, errbuf *C.uchar, errbufLen *C.size_t) C.bool {
	return contextAdd(h, field, matchbox.IntValue(int64(v)), errbuf, errbufLen)
}

//export context_add_value_ipaddr
func context_add_value_ipaddr(h C.uintptr_t, field, addr *C.char, errbuf *C.uchar, errbufLen *C.size_t) C.bool {
	v, err := matchbox.IPAddrValue(C.GoString(addr))
	if err != nil {
		writeErr(errbuf, errbufLen, err.Error())
		return false
	}
	return contextAdd(h, field, v, errbuf, errbufLen)
}

//export context_add_value_ipcidr
func context_add_value_ipcidr(h C.uintptr_t, field, cidr *C.char, errbuf *C.uchar, errbufLen *C.size_t) C.bool {
	v, err := matchbox.IPCidrValue(C.GoString(cidr))
	if err != nil {
		writeErr(errbuf, errbufLen, err.Error())
		return false
	}
	return contextAdd(h, field, v, errbuf, errbufLen)
}

// context_get_result copies the matched uuid (36-byte hyphenated) into
// uuidBuf and, when matchedField is non-null, the deciding value for that
// field into valueBuf. The return is the capture count, or -1 when the
// context holds no result (no execute has matched since the context was
// created or last reset).
//
//export context_get_result
func context_get_result(h C.uintptr_t, uuidBuf *C.uchar, matchedField *C.char, valueBuf *C.uchar, valueLen *C.size_t) C.long {
	ctx := cgo.Handle(h).Value().(*matchbox.Context)
	res := ctx.Result()
	if res == nil {
		return -1
	}

	if uuidBuf != nil {
		id := res.UUID().String() // 36-byte hyphenated form
		dst := unsafe.Slice((*byte)(unsafe.Pointer(uuidBuf)), len(id))
		copy(dst, id)
	}

	if matchedField != nil {
		v, ok := res.MatchedValue(C.GoString(matchedField))
		if ok {
			writeBytes(valueBuf, valueLen, []byte(v))
		} else if valueLen != nil {
			*valueLen = 0
		}
	}

	return C.long(len(res.Captures()))
}

// context_get_capture copies the i-th capture (in lexical name order) into
// the caller's name and value buffers.
//
//export context_get_capture
func context_get_capture(h C.uintptr_t, i C.size_t, nameBuf *C.uchar, nameLen *C.size_t, valueBuf *C.uchar, valueLen *C.size_t) C.bool {
	ctx := cgo.Handle(h).Value().(*matchbox.Context)
	res := ctx.Result()
	if res == nil {
		return false
	}

	captures := res.Captures()
	names := make([]string, 0, len(captures))
	for name := range captures {
		names = append(names, name)
	}
	sort.Strings(names)
	if int(i) >= len(names) {
		return false
	}

	name := names[i]
	ok := writeBytes(nameBuf, nameLen, []byte(name))
	return C.bool(writeBytes(valueBuf, valueLen, []byte(captures[name])) && ok)
}

func main() {}
