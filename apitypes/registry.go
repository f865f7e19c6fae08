package apitypes

import "fmt"

// Field describes one member of a published type.
type Field struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// TypeShape describes a published type.
type TypeShape struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// PackageShape lists the types a shared package publishes.
type PackageShape struct {
	Package string      `json:"package"`
	Types   []TypeShape `json:"types"`
}

var packages = map[string]func() PackageShape{
	PackageName: Describe,
}

// Describe returns the shapes published by this package.
func Describe() PackageShape {
	return PackageShape{
		Package: PackageName,
		Types: []TypeShape{
			{Name: "User", Fields: []Field{
				{Name: "id", Type: "string"},
				{Name: "email", Type: "string"},
				{Name: "name", Type: "string", Nullable: true},
			}},
			{Name: "AuthResponse", Fields: []Field{
				{Name: "token", Type: "string"},
				{Name: "user", Type: "User"},
			}},
		},
	}
}

// Known reports whether name is a shared package this module can publish.
func Known(name string) bool {
	_, ok := packages[name]
	return ok
}

// Lookup returns the shapes for the named shared packages in order.
func Lookup(names ...string) ([]PackageShape, error) {
	out := make([]PackageShape, 0, len(names))
	for _, name := range names {
		describe, ok := packages[name]
		if !ok {
			return nil, fmt.Errorf("apitypes: unknown shared package %q", name)
		}
		out = append(out, describe())
	}
	return out, nil
}
