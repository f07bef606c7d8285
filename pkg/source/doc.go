// Package source turns a query item's text into SQL.
//
// The text is classified once: a path ending in .sql is read from disk, a
// path ending in .tmpl is rendered as a text/template with the facts and
// vars in scope, and anything else is the SQL itself.
package source
