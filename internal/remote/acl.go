package remote

import (
	"io/fs"
	"sort"
	"strings"
)

// UserKind distinguishes grantee namespaces.
type UserKind int

const (
	CanonicalUser UserKind = iota
	EmailUser
	GroupUser
	// OwnerUser, GroupOwner and Others are the POSIX mode classes.
	OwnerUser
	GroupOwner
	Others
)

// User is a grantee.
type User struct {
	Kind UserKind
	ID   string
}

// Role is a permission granted to a User.
type Role string

// Common roles. Object stores add their own (for example FULL_CONTROL).
const (
	RoleRead        Role = "READ"
	RoleWrite       Role = "WRITE"
	RoleExecute     Role = "EXECUTE"
	RoleFullControl Role = "FULL_CONTROL"
	RoleReadAcp     Role = "READ_ACP"
	RoleWriteAcp    Role = "WRITE_ACP"
)

// Grant pairs a user with a role.
type Grant struct {
	User User
	Role Role
}

// Acl is an access control list. Modified marks entries changed relative to
// what was last read from the remote.
type Acl struct {
	Grants   []Grant
	Modified bool
}

// NewAcl returns an unmodified Acl holding grants.
func NewAcl(grants ...Grant) Acl {
	return Acl{Grants: grants}
}

// IsEmpty reports whether the Acl holds no grants.
func (a Acl) IsEmpty() bool { return len(a.Grants) == 0 }

// Clone returns a deep copy.
func (a Acl) Clone() Acl {
	if a.Grants != nil {
		a.Grants = append([]Grant(nil), a.Grants...)
	}
	return a
}

// Equal compares the grant sets, ignoring order, duplicates and the Modified
// flag.
func (a Acl) Equal(o Acl) bool {
	x, y := a.set(), o.set()
	if len(x) != len(y) {
		return false
	}
	for g := range x {
		if _, ok := y[g]; !ok {
			return false
		}
	}
	return true
}

func (a Acl) set() map[Grant]struct{} {
	m := make(map[Grant]struct{}, len(a.Grants))
	for _, g := range a.Grants {
		m[g] = struct{}{}
	}
	return m
}

// Roles returns the roles granted to u.
func (a Acl) Roles(u User) []Role {
	var roles []Role
	for _, g := range a.Grants {
		if g.User == u {
			roles = append(roles, g.Role)
		}
	}
	return roles
}

func (a Acl) String() string {
	if a.IsEmpty() {
		return "(none)"
	}
	parts := make([]string, 0, len(a.Grants))
	for _, g := range a.Grants {
		parts = append(parts, userLabel(g.User)+"="+string(g.Role))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func userLabel(u User) string {
	switch u.Kind {
	case OwnerUser:
		return "owner"
	case GroupOwner:
		return "group"
	case Others:
		return "others"
	case EmailUser:
		return "email:" + u.ID
	case GroupUser:
		return "group:" + u.ID
	default:
		return u.ID
	}
}

var (
	ownerClass  = User{Kind: OwnerUser}
	groupClass  = User{Kind: GroupOwner}
	othersClass = User{Kind: Others}
)

var modeBits = []struct {
	user  User
	role  Role
	shift uint
}{
	{ownerClass, RoleRead, 8}, {ownerClass, RoleWrite, 7}, {ownerClass, RoleExecute, 6},
	{groupClass, RoleRead, 5}, {groupClass, RoleWrite, 4}, {groupClass, RoleExecute, 3},
	{othersClass, RoleRead, 2}, {othersClass, RoleWrite, 1}, {othersClass, RoleExecute, 0},
}

// AclFromMode maps POSIX permission bits to owner, group and others grants.
func AclFromMode(mode fs.FileMode) Acl {
	var grants []Grant
	for _, b := range modeBits {
		if mode.Perm()&(1<<b.shift) != 0 {
			grants = append(grants, Grant{User: b.user, Role: b.role})
		}
	}
	return Acl{Grants: grants}
}

// Mode maps owner, group and others grants back to permission bits. Grants
// for other users are ignored.
func (a Acl) Mode() fs.FileMode {
	set := a.set()
	var mode fs.FileMode
	for _, b := range modeBits {
		if _, ok := set[Grant{User: b.user, Role: b.role}]; ok {
			mode |= 1 << b.shift
		}
	}
	return mode
}
