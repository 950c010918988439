/*
Package dihttp provides HTTP middleware that runs each request inside a [di.RequestScope].

Example:

	package main

	import (
		"net/http"

		"github.com/kod-kristoff/reqscope"
		"github.com/kod-kristoff/reqscope/dihttp"
	)

	var DBKey = di.NewKey[*DB]("db")

	func main() {
		c, err := di.NewContainer(
			di.WithService(DBKey, OpenDB, di.Scoped),
		)
		if err != nil {
			panic(err)
		}

		// Create a new request scope middleware
		mw, err := dihttp.NewRequestScopeMiddleware(c.RequestScope())
		if err != nil {
			panic(err)
		}

		// Create a handler function
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			db := di.MustResolve(r.Context(), c, DBKey)

			db.HandleRequest(w, r)
		})

		// Wrap the handler with the middleware
		http.Handle("/", mw(handler))
		http.ListenAndServe(":8000", nil)
	}
*/
package dihttp
