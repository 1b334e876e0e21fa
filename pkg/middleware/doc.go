// Package middleware adapts the authorization core to net/http and gorilla/mux.
//
// A Guard resolves the caller's identity, loads their attribute bundle and consults the
// evaluator before a handler runs:
//
//	guard := middleware.NewGuard(evaluator, middleware.NewHeaderIdentity("costs"), store)
//
//	r := mux.NewRouter()
//	r.Handle("/reports/{id}", guard.Require("view", reportBinding,
//		middleware.PathObject("id", loadReport))(showReport))
//	r.Handle("/reports", guard.RequireList("list", reportBinding)(listReports))
//
// List handlers read the compiled predicate with FilterFromContext, or check each record
// when ListFallbackFromContext is set.
//
// A missing identity is answered with 401. Every other denial, including an unavailable
// attribute store, gets the same 403 body so callers learn nothing about policies.
package middleware
