// Package query is the search engine behind formquery.
//
// A request names one of four modes. Structured queries go to the
// repository verbatim; relevance and full-text queries are wrapped into
// structured-dialect templates after escaping; quick queries run an
// ancestor-path query over answer nodes and roll every match up to the
// form that owns it, with a before/match/after snippet attached.
//
// The engine is synchronous and holds no per-request state. The only
// collaborator it needs is an Executor, which the repository package
// implements on top of sqlite.
package query
