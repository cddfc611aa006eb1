// Package http serves the terminal channel protocol over Gin.
//
// Every channel operation is a POST of the JSON envelope to the base path
// followed by the operation name:
//
//	POST {base}write    {"session_id", "extra", "data"}       -> {}
//	POST {base}read     {"session_id", "extra"}               -> {"data"}
//	POST {base}setSize  {"session_id", "extra", "columns", "rows"} -> {}
//
// The first request naming an unknown session id starts its program. read
// long-polls until output is available; once the program has exited and its
// output is drained it answers 410 Gone, which ends the client's read loop.
//
// Admin endpoints:
//
//	GET    {base}sessions
//	DELETE {base}sessions/:id
//	GET    /health
package http
