package fhir

// SearchQuery is a compiled, parametrized statement produced by a query
// compiler and executed verbatim by the store.
type SearchQuery struct {
	Query string
	Args  []any
}
