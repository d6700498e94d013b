package host_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ferry/internal/host"
)

func TestParseLocation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		wantProto host.Protocol
		wantHost  string
		wantUser  string
		wantPort  int
		wantPath  string
	}{
		{name: "absolute path", input: "/home/user/data", wantProto: host.ProtocolLocal, wantPath: "/home/user/data"},
		{name: "relative path", input: "data/files", wantProto: host.ProtocolLocal, wantPath: "data/files"},
		{name: "dot-relative path", input: "./data", wantProto: host.ProtocolLocal, wantPath: "./data"},
		{name: "file url", input: "file:///tmp/x", wantProto: host.ProtocolLocal, wantPath: "/tmp/x"},
		{name: "colon inside local path", input: "dir/file:with:colons", wantProto: host.ProtocolLocal, wantPath: "dir/file:with:colons"},
		{
			name: "scp syntax", input: "user@nas:/backup/data",
			wantProto: host.ProtocolSFTP, wantHost: "nas", wantUser: "user", wantPath: "/backup/data",
		},
		{
			name: "host only scp syntax", input: "nas:backup",
			wantProto: host.ProtocolSFTP, wantHost: "nas", wantPath: "backup",
		},
		{
			name: "sftp url with port", input: "sftp://alice@example.com:2222/srv/files",
			wantProto: host.ProtocolSFTP, wantHost: "example.com", wantUser: "alice", wantPort: 2222, wantPath: "/srv/files",
		},
		{
			name: "s3 url", input: "s3://bucket/some/key",
			wantProto: host.ProtocolS3, wantHost: host.DefaultS3Hostname, wantPath: "/bucket/some/key",
		},
		{
			name: "s3 bucket only", input: "s3://bucket",
			wantProto: host.ProtocolS3, wantHost: host.DefaultS3Hostname, wantPath: "/bucket",
		},
		{
			name: "memory", input: "mem://scratch/dir",
			wantProto: host.ProtocolMemory, wantHost: "scratch", wantPath: "/dir",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			loc, err := host.ParseLocation(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.wantProto, loc.Host.Protocol)
			assert.Equal(t, tt.wantHost, loc.Host.Hostname)
			assert.Equal(t, tt.wantUser, loc.Host.Credentials.User)
			assert.Equal(t, tt.wantPort, loc.Host.Port)
			assert.Equal(t, tt.wantPath, loc.Path)
		})
	}
}

func TestParseLocationErrors(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"ftp://host/x", "s3:///key", "sftp:///path"} {
		_, err := host.ParseLocation(in)
		assert.Error(t, err, in)
	}
}

func TestHostString(t *testing.T) {
	t.Parallel()
	h := host.Host{Protocol: host.ProtocolSFTP, Hostname: "nas", Port: 2222, Credentials: host.Credentials{User: "bob"}, DefaultPath: "/d"}
	assert.Equal(t, "sftp://bob@nas:2222/d", h.String())
	assert.Equal(t, "nas:2222", h.Addr())

	h.Port = 0
	assert.Equal(t, "sftp://bob@nas/d", h.String())
	assert.Equal(t, "nas:22", h.Addr())

	loc, err := host.ParseLocation("s3://b/k")
	require.NoError(t, err)
	assert.Equal(t, "s3://s3.amazonaws.com/b/k", loc.String())
	assert.True(t, loc.IsRemote())
}

func TestCredentialsValidate(t *testing.T) {
	t.Parallel()
	assert.False(t, host.Credentials{User: "u"}.Validate(host.ProtocolSFTP))
	assert.True(t, host.Credentials{User: "u", Password: "p"}.Validate(host.ProtocolSFTP))
	assert.True(t, host.Credentials{}.Validate(host.ProtocolS3))
	assert.False(t, host.Credentials{User: "AKIA"}.Validate(host.ProtocolS3))
}
