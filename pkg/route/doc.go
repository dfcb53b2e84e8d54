// Package route defines the declarative data model served by mocify:
// collections of routes, each route mapping an exact (method, path) pair to a
// canned response.
//
// The types in this package carry no behavior beyond validation and
// encoding. Matching and response synthesis live in the engine package;
// persistence lives behind the store interfaces.
package route
