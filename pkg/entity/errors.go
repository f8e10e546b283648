package entity

import "fmt"

// MappingError reports a logical name that could not be resolved
// against an entity config. It is always a programmer or configuration
// error: it is raised before any SQL reaches the driver and is never
// retried.
type MappingError struct {
	Entity string
	Kind   string // "column", "relation" or "entity"
	Name   string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("entity %q: unknown %s %q", e.Entity, e.Kind, e.Name)
}

func unknownColumn(entity, name string) *MappingError {
	return &MappingError{Entity: entity, Kind: "column", Name: name}
}

func unknownRelation(entity, name string) *MappingError {
	return &MappingError{Entity: entity, Kind: "relation", Name: name}
}

func unknownEntity(entity, name string) *MappingError {
	return &MappingError{Entity: entity, Kind: "entity", Name: name}
}
