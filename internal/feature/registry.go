package feature

import (
	"fmt"
	"slices"
)

// ID identifies a capability.
type ID int

const (
	IDRead ID = iota + 1
	IDWrite
	IDList
	IDDelete
	IDSearch
	IDAclPermission
	IDLocation
	IDTransferAcceleration
	IDDirectory
	IDStat
)

var idNames = [...]string{
	IDRead:                 "Read",
	IDWrite:                "Write",
	IDList:                 "List",
	IDDelete:               "Delete",
	IDSearch:               "Search",
	IDAclPermission:        "AclPermission",
	IDLocation:             "Location",
	IDTransferAcceleration: "TransferAcceleration",
	IDDirectory:            "Directory",
	IDStat:                 "Stat",
}

func (id ID) String() string {
	if id > 0 && int(id) < len(idNames) {
		return idNames[id]
	}
	return fmt.Sprintf("ID(%d)", int(id))
}

// Key binds a capability ID to its interface type.
type Key[T any] struct{ id ID }

func (k Key[T]) ID() ID { return k.id }

var (
	ReadKey                 = Key[Read]{IDRead}
	WriteKey                = Key[Write]{IDWrite}
	ListKey                 = Key[List]{IDList}
	DeleteKey               = Key[Delete]{IDDelete}
	SearchKey               = Key[Search]{IDSearch}
	AclPermissionKey        = Key[AclPermission]{IDAclPermission}
	LocationKey             = Key[Location]{IDLocation}
	TransferAccelerationKey = Key[TransferAcceleration]{IDTransferAcceleration}
	DirectoryKey            = Key[Directory]{IDDirectory}
	StatKey                 = Key[Stat]{IDStat}
)

// Entry is one registration produced by Provide.
type Entry struct {
	id   ID
	impl any
}

// Provide registers impl for the capability named by k.
func Provide[T any](k Key[T], impl T) Entry {
	return Entry{id: k.id, impl: impl}
}

// Registry maps capability IDs to a backend's implementations. It is built
// once and never modified.
type Registry struct {
	impls map[ID]any
}

// NewRegistry builds a registry. Later entries replace earlier ones with the
// same ID, so callers can layer overrides.
func NewRegistry(entries ...Entry) *Registry {
	r := &Registry{impls: make(map[ID]any, len(entries))}
	for _, e := range entries {
		if e.impl == nil {
			continue
		}
		r.impls[e.id] = e.impl
	}
	return r
}

// Has reports whether the backend implements id.
func (r *Registry) Has(id ID) bool {
	if r == nil {
		return false
	}
	_, ok := r.impls[id]
	return ok
}

// IDs lists the implemented capabilities in ID order.
func (r *Registry) IDs() []ID {
	if r == nil {
		return nil
	}
	ids := make([]ID, 0, len(r.impls))
	for id := range r.impls {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Lookup returns the backend's implementation of k, or fallback verbatim
// when there is none. It never fails.
func Lookup[T any](r *Registry, k Key[T], fallback T) T {
	if r == nil {
		return fallback
	}
	if impl, ok := r.impls[k.id].(T); ok {
		return impl
	}
	return fallback
}
