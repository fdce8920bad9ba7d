// Package validation binds request data and validates it.
//
// Rules live in `validate` struct tags on the model payloads; this package
// turns their failures into field errors the client can act on.
package validation
