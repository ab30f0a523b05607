// Package thttp is a context-controlled HTTP server wrapper, used here to
// host WebSocket endpoints such as the mock live query server.
//
// Instead of the pre-context-era start-and-stop paradigm, thttp.Server is
// controlled with a context passed to its Run method. This fits much better
// into hierarchies of internal components that need to be started and shut
// down as a whole. Plays especially nice with parallel.Run.
//
// The server code ensures that every incoming request has a context
// inherited from the context passed to Run, thus supporting the global
// expectation that every context contains a logger. The somewhat tricky
// graceful shutdown sequence, including waiting out hijacked WebSocket
// connections, is taken care of by thttp.Server.
//
// Only a single handler is passed to thttp.NewServer. Most use cases will
// need path-based routing; the standard solution is github.com/gorilla/mux:
//
//	router := mux.NewRouter()
//	router.HandleFunc("/live", liveHandler)
//	server := thttp.NewServer(listener, thttp.Wrap(router, thttp.StandardMiddleware))
//	spawn("http", parallel.Fail, server.Run)
//
// In an HTTP handler, r.Context() returns a descendant of the context passed
// into Run, with all its values. During shutdown it stays open for somewhat
// longer than the parent context to allow running requests to complete.
//
// For all logging in HTTP handlers, use the logger embedded in the request
// context (tlog.Get(r.Context())). In case of an internal error, don't log
// it explicitly. Just panic, and the thttp.Recover middleware will log the
// complete error with the panic stack, the client will receive a generic
// error 500, and the server will be terminated gracefully.
package thttp
