// Package cli provides the mocify CLI commands.
//
//	mocify serve       run the engine, the control API and seed loading
//	mocify servers     list, start and stop mock servers of a running instance
//	mocify validate    check seed files without serving them
//	mocify version     print build information
package cli
