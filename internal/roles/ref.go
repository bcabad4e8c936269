package roles

import (
	"bytes"
	"encoding/json"
)

// Kind tags the shape a role was supplied in.
type Kind uint8

const (
	// KindNone means no role is known for the user.
	KindNone Kind = iota
	// KindSimple is a bare role name.
	KindSimple
	// KindHierarchical is a role object that may carry a parent role.
	KindHierarchical
)

// Ref is the role attached to a user record. Stored records carry it either
// as a plain string or as an object with a name and an optional parent, so
// the two shapes are kept apart here and nowhere else.
type Ref struct {
	kind        Kind
	name        string
	parent      *Ref
	permissions []string
}

// Simple builds a Ref from a bare role name.
func Simple(name string) Ref {
	return Ref{kind: KindSimple, name: name}
}

// Hierarchical builds a Ref from a role object. parent may be nil.
func Hierarchical(name string, parent *Ref) Ref {
	return Ref{kind: KindHierarchical, name: name, parent: parent}
}

// WithPermissions returns a copy of r carrying a nested permission list.
// Only role objects keep it.
func (r Ref) WithPermissions(perms []string) Ref {
	if r.kind != KindHierarchical {
		return r
	}
	r.permissions = append([]string(nil), perms...)
	return r
}

// Kind reports the shape of the role.
func (r Ref) Kind() Kind {
	return r.kind
}

// Parent returns the parent role object, if any.
func (r Ref) Parent() *Ref {
	if r.kind != KindHierarchical {
		return nil
	}
	return r.parent
}

// Permissions returns the permission names nested in a role object.
func (r Ref) Permissions() []string {
	return r.permissions
}

// IsZero reports whether no role is known.
func (r Ref) IsZero() bool {
	return r.kind == KindNone
}

type refObject struct {
	Name        json.RawMessage `json:"name,omitempty"`
	Parent      json.RawMessage `json:"parent,omitempty"`
	Permissions json.RawMessage `json:"permissions,omitempty"`
}

// UnmarshalJSON accepts a string, an object or null. Anything else decodes
// to an unknown role rather than failing the whole record.
func (r *Ref) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		*r = Ref{}
		return nil
	}
	switch trimmed[0] {
	case '"':
		var name string
		if err := json.Unmarshal(trimmed, &name); err != nil {
			return err
		}
		*r = Simple(name)
	case '{':
		var obj refObject
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return err
		}
		var name string
		if len(obj.Name) > 0 {
			if err := json.Unmarshal(obj.Name, &name); err != nil {
				name = ""
			}
		}
		var parent *Ref
		if len(obj.Parent) > 0 && !bytes.Equal(bytes.TrimSpace(obj.Parent), []byte("null")) {
			var p Ref
			if err := p.UnmarshalJSON(obj.Parent); err == nil && !p.IsZero() {
				parent = &p
			}
		}
		ref := Hierarchical(name, parent)
		if len(obj.Permissions) > 0 {
			var perms []string
			if err := json.Unmarshal(obj.Permissions, &perms); err == nil {
				ref.permissions = perms
			}
		}
		*r = ref
	default:
		*r = Ref{}
	}
	return nil
}

// MarshalJSON writes the role back in the shape it was built with.
func (r Ref) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case KindSimple:
		return json.Marshal(r.name)
	case KindHierarchical:
		out := struct {
			Name        string   `json:"name,omitempty"`
			Parent      *Ref     `json:"parent,omitempty"`
			Permissions []string `json:"permissions,omitempty"`
		}{Name: r.name, Permissions: r.permissions}
		if r.parent != nil {
			parent := *r.parent
			// Only one level of parent is meaningful; cut deeper chains so a
			// self-referencing object cannot recurse forever.
			parent.parent = nil
			out.Parent = &parent
		}
		return json.Marshal(out)
	default:
		return []byte("null"), nil
	}
}
