// Package filter provides declarative filter predicates that a storage layer can evaluate.
//
// A Predicate is a small boolean expression tree (Eq, In, And, Or, Const) over named
// record fields. Policies that support listing produce one, so authorization is applied in
// the query instead of fetching every row and checking it in process.
//
// Build predicates with the folding constructors:
//
//	p := filter.AnyOf(
//		filter.Eq{Field: "owner_id", Value: user.UserID},
//		filter.Eq{Field: "department", Value: user.Department},
//	)
//
// Render them for database/sql:
//
//	where, args, err := filter.ToSQL(p, filter.Dollar)
//	rows, err := db.QueryContext(ctx, "SELECT * FROM reports WHERE "+where, args...)
//
// Or evaluate them in process against any Record:
//
//	ok, err := filter.Match(p, filter.MapRecord{"owner_id": "u1"})
//
// Field names are validated as SQL identifiers; values are always bound as parameters.
package filter
