//go:build cgo

package grammar

/*
#cgo linux LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>

typedef const void *(*language_fn)(void);

static const void *call_language(void *fn) {
	return ((language_fn)fn)();
}
*/
import "C"

import (
	"fmt"
	"unsafe"

	sitter "github.com/smacker/go-tree-sitter"
)

// Available reports whether grammars can be loaded in this build.
func Available() bool { return true }

// open keeps the library handle for the life of the process; the
// Language points into it.
func open(path, symbol string) (*sitter.Language, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	handle := C.dlopen(cpath, C.RTLD_NOW|C.RTLD_LOCAL)
	if handle == nil {
		return nil, fmt.Errorf("dlopen: %s", C.GoString(C.dlerror()))
	}

	csym := C.CString(symbol)
	defer C.free(unsafe.Pointer(csym))

	fn := C.dlsym(handle, csym)
	if fn == nil {
		return nil, fmt.Errorf("dlsym %s: %s", symbol, C.GoString(C.dlerror()))
	}
	ptr := C.call_language(fn)
	if ptr == nil {
		return nil, fmt.Errorf("%s returned NULL", symbol)
	}
	return sitter.NewLanguage(unsafe.Pointer(ptr)), nil
}
