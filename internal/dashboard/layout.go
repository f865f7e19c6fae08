// Package dashboard guards the protected section of the application.
//
// The gate wraps nested content in a section container. Whether a caller may
// see that content is decided by a Checker; the default Passthrough checker
// admits everyone without looking anything up.
package dashboard

import "html/template"

// Layout wraps children in the dashboard container. Children are inserted as
// given.
func Layout(children template.HTML) template.HTML {
	return "<section>" + children + "</section>"
}
