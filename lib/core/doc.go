// Package core is the command layer of dStruct.
//
// A Store owns the connection to one backend (pool plus transaction
// manager) and the data type engines. Front ends call Dispatch with a
// command name and its raw arguments and get back a Result, an abstract
// reply that is either null, an integer, a bulk string, an array of
// results or a status line. Serializing a Result into a wire format is
// left to the front end.
//
// Every command runs in the context of a session. If the session has an
// open transaction (begin) the command joins it, otherwise it runs in its
// own implicit transaction or, in raw mode, directly on the raw client.
//
// Usage:
//
//	s := core.New(core.Config{Driver: memkv.NewDriver(), InstanceID: 1})
//	_ = s.Connect(ctx)
//	res, err := s.Dispatch(ctx, sid, "rpush", [][]byte{[]byte("q"), []byte("a")})
package core
