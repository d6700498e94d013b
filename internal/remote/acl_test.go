package remote

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAclEqualIgnoresOrderAndModified(t *testing.T) {
	alice := User{ID: "alice"}
	bob := User{Kind: EmailUser, ID: "bob@example.com"}

	a := NewAcl(Grant{alice, RoleRead}, Grant{bob, RoleWrite})
	b := Acl{Grants: []Grant{{bob, RoleWrite}, {alice, RoleRead}}, Modified: true}
	c := NewAcl(Grant{alice, RoleRead})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.True(t, Acl{}.Equal(NewAcl()))
}

func TestAclModeRoundTrip(t *testing.T) {
	for _, mode := range []fs.FileMode{0o644, 0o755, 0o600, 0o000, 0o777} {
		assert.Equal(t, mode, AclFromMode(mode).Mode(), "mode %o", mode)
	}
}

func TestAclFromModeGrants(t *testing.T) {
	acl := AclFromMode(0o640)
	assert.ElementsMatch(t, []Role{RoleRead, RoleWrite}, acl.Roles(User{Kind: OwnerUser}))
	assert.Equal(t, []Role{RoleRead}, acl.Roles(User{Kind: GroupOwner}))
	assert.Empty(t, acl.Roles(User{Kind: Others}))
	assert.False(t, acl.Modified)
}

func TestAclString(t *testing.T) {
	assert.Equal(t, "(none)", Acl{}.String())
	acl := NewAcl(Grant{User{Kind: Others}, RoleRead}, Grant{User{Kind: OwnerUser}, RoleWrite})
	assert.Equal(t, "others=READ,owner=WRITE", acl.String())
}
