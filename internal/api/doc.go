// Package api is the HTTP surface of Smart Pot Core.
//
// Every handler runs one unit of work against the relational store through
// database.WithTx. Routes other than /, /health, /metrics, /register,
// /token and /token/refresh require an "Authorization: Bearer" access
// token; the token subject scopes every pot, plant and reading lookup, so a
// resource owned by someone else is reported as not found.
//
// Errors always use the same body:
//
//	{"status":404,"code":"not_found","message":"Pot with name 'x' not found."}
//
// The server follows the usual lifecycle:
//
//	srv, err := api.New(deps)
//	srv.Start(ctx)
//	defer srv.Close()
package api
