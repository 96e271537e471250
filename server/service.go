package server

import (
	"context"
	"fmt"
	"reflect"

	"dhcpproxy/message"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	bytesType   = reflect.TypeOf([]byte(nil))
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Register scans rcvr for exported methods named after an operation, such
// as GetProxyVersion, with the signature
//
//	func(ctx context.Context, args []byte) ([]byte, error)
//
// and handles each operation with the matching method. Methods with other
// names or signatures are ignored.
func (svr *Server) Register(rcvr any) error {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return fmt.Errorf("server: rcvr must be a pointer, got %T", rcvr)
	}
	val := reflect.ValueOf(rcvr)

	registered := 0
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)

		op, ok := message.ParseOpCode(method.Name)
		if !ok || !isOperation(method.Type) {
			continue
		}

		fn := val.Method(i)
		svr.Handle(op, func(ctx context.Context, req *message.Request) ([]byte, error) {
			args := [2]reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(req.Args)}
			results := fn.Call(args[:])

			data, _ := results[0].Interface().([]byte)
			if !results[1].IsNil() {
				return data, results[1].Interface().(error)
			}
			return data, nil
		})
		registered++
	}

	if registered == 0 {
		return fmt.Errorf("server: %s has no operation methods", typ)
	}
	return nil
}

// isOperation checks a method type including its receiver.
func isOperation(t reflect.Type) bool {
	return t.NumIn() == 3 && t.NumOut() == 2 &&
		t.In(1) == contextType && t.In(2) == bytesType &&
		t.Out(0) == bytesType && t.Out(1) == errorType
}
