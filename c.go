package main

/*
#include <stdlib.h>
*/
import "C"
import "unsafe"

// restsql_translate converts a statement and a JSON array of parameters into
// a JSON description of the request. The result must be released with
// restsql_free.
//
//export restsql_translate
func restsql_translate(sql *C.char, params *C.char) *C.char {
	return C.CString(translateJSON(C.GoString(sql), C.GoString(params)))
}

//export restsql_free
func restsql_free(s *C.char) {
	C.free(unsafe.Pointer(s))
}
