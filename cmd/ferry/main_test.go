package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ferry/internal/feature"
	"github.com/bamsammich/ferry/internal/host"
	"github.com/bamsammich/ferry/internal/login"
	"github.com/bamsammich/ferry/internal/remote"
	"github.com/bamsammich/ferry/internal/vault"
)

type harness struct {
	t     *testing.T
	app   *app
	out   *bytes.Buffer
	store *login.MemoryStore
	conf  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	var out, errOut bytes.Buffer
	store := login.NewMemoryStore()
	a := &app{
		stdout:  &out,
		stderr:  &errOut,
		prompt:  feature.DisabledLoginCallback{},
		confirm: feature.DisabledConnectionCallback{},
		store:   login.Chain{store},
	}
	t.Cleanup(a.shutdown)

	// A low scrypt cost keeps vault tests fast.
	conf := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(conf, []byte("[vault.scrypt]\nn = 16\n"), 0o644))
	return &harness{t: t, app: a, out: &out, store: store, conf: conf}
}

// run executes one command line and returns its stdout.
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	h.out.Reset()
	cmd := newRootCmd(h.app)
	cmd.SetArgs(append([]string{"--config", h.conf, "--quiet"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return h.out.String(), err
}

func (h *harness) must(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, strings.Join(args, " "))
	return out
}

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func TestPutThenGetRoundTrip(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	src := filepath.Join(t.TempDir(), "a.txt")
	writeFile(t, src, "hello")

	h.must("mkdir", "mem://t/bucket")
	h.must("put", "--checksum", src, "mem://t/bucket/")
	assert.Equal(t, "a.txt\n", h.must("ls", "mem://t/bucket"))

	dst := t.TempDir()
	h.must("get", "mem://t/bucket/a.txt", dst)
	got, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestPutSingleFileKeepsRemoteName(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	src := filepath.Join(t.TempDir(), "a.txt")
	writeFile(t, src, "hello")

	h.must("mkdir", "mem://t/bucket")
	h.must("put", src, "mem://t/bucket/renamed.bin")
	assert.Equal(t, "renamed.bin\n", h.must("ls", "mem://t/bucket"))
}

func TestPutRecursiveSkipsConfiguredPatterns(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	src := filepath.Join(t.TempDir(), "src")
	writeFile(t, filepath.Join(src, "keep.txt"), "keep")
	writeFile(t, filepath.Join(src, "draft.txt~"), "skip me")
	writeFile(t, filepath.Join(src, "sub", "n.txt"), "nested")

	h.must("mkdir", "mem://t/bucket")
	_, err := h.run("put", src, "mem://t/bucket/")
	require.ErrorContains(t, err, "use -r")

	h.must("put", "-r", src, "mem://t/bucket/")
	assert.Equal(t, "keep.txt\nsub/\n", h.must("ls", "mem://t/bucket/src"))
	assert.Equal(t, "10 B\t/bucket/src\n", h.must("du", "mem://t/bucket/src"))

	dst := t.TempDir()
	_, err = h.run("get", "mem://t/bucket/src", dst)
	require.ErrorContains(t, err, "use -r")
	h.must("get", "-r", "mem://t/bucket/src", dst)
	got, err := os.ReadFile(filepath.Join(dst, "src", "sub", "n.txt"))
	require.NoError(t, err)
	assert.Equal(t, "nested", string(got))

	h.must("rm", "mem://t/bucket/src")
	assert.Empty(t, h.must("ls", "mem://t/bucket"))
}

func TestSearchByPrefixAndGlob(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	dir := t.TempDir()
	for _, name := range []string{"Report.txt", "report.csv", "notes.txt"} {
		writeFile(t, filepath.Join(dir, name), name)
	}
	h.must("mkdir", "mem://t/bucket")
	h.must("put", filepath.Join(dir, "Report.txt"), filepath.Join(dir, "report.csv"), filepath.Join(dir, "notes.txt"), "mem://t/bucket/")

	assert.Equal(t, "/Report.txt\n/report.csv\n", h.must("search", "mem://t/bucket", "rep"))
	assert.Equal(t, "/Report.txt\n/notes.txt\n", h.must("search", "mem://t/bucket", "*.txt"))
}

func TestAclSetAndGet(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	src := filepath.Join(t.TempDir(), "a.txt")
	writeFile(t, src, "hello")
	h.must("mkdir", "mem://t/bucket")
	h.must("put", src, "mem://t/bucket/")

	h.must("acl", "set", "mem://t/bucket/a.txt", "640")
	assert.Equal(t, "group=READ\nowner=READ\nowner=WRITE\n", h.must("acl", "get", "mem://t/bucket/a.txt"))

	h.must("acl", "set", "-R", "mem://t/bucket", "email:a@example.com=full_control")
	assert.Equal(t, "email:a@example.com=FULL_CONTROL\n", h.must("acl", "get", "mem://t/bucket/a.txt"))
}

func TestLocationAndAccelerate(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.must("mkdir", "mem://t/bucket")

	assert.Equal(t, "Unknown\n", h.must("location", "mem://t/bucket"))
	assert.Equal(t, "off\n", h.must("accelerate", "mem://t/bucket"))
	h.must("accelerate", "mem://t/bucket", "on")
	assert.Equal(t, "on\n", h.must("accelerate", "mem://t/bucket"))

	_, err := h.run("accelerate", "mem://t/bucket", "maybe")
	assert.Error(t, err)
	_, err = h.run("location", t.TempDir())
	assert.ErrorContains(t, err, "unsupported")
}

func TestVaultHidesNamesFromPlainListing(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	src := filepath.Join(t.TempDir(), "a.txt")
	writeFile(t, src, "secret data")
	root := remote.Parse("/bucket/secret", remote.Directory)
	require.NoError(t, h.store.Save(host.ProtocolMemory, 0, "t", vault.PasswordUser(root), "pw"))

	h.must("mkdir", "mem://t/bucket")
	h.must("vault", "create", "mem://t/bucket/secret")
	h.app.shutdown()

	h.must("--vault=/bucket/secret", "put", src, "mem://t/bucket/secret/")
	assert.Equal(t, "a.txt\n", h.must("--vault=/bucket/secret", "ls", "mem://t/bucket/secret"))
	h.app.shutdown()

	plain := h.must("ls", "mem://t/bucket/secret")
	assert.NotContains(t, plain, "a.txt")
	assert.Equal(t, "vault at /bucket/secret unlocked\n", h.must("vault", "unlock", "mem://t/bucket/secret"))
}

func TestVaultCreateWithoutPassphraseFails(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	_, err := h.run("vault", "create", "mem://t/v")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	assert.Equal(t, "ferry dev\n", h.must("version"))
}

func TestParseAcl(t *testing.T) {
	t.Parallel()
	tests := []struct {
		args    []string
		want    string
		wantErr bool
	}{
		{args: []string{"644"}, want: "group=READ,others=READ,owner=READ,owner=WRITE"},
		{args: []string{"0700"}, want: "owner=EXECUTE,owner=READ,owner=WRITE"},
		{args: []string{"owner=read", "group:http://acs/AllUsers=READ"}, want: "group:http://acs/AllUsers=READ,owner=READ"},
		{args: []string{"abc123=WRITE_ACP"}, want: "abc123=WRITE_ACP"},
		{args: []string{"999"}, wantErr: true},
		{args: []string{"owner="}, wantErr: true},
		{args: []string{"rw"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			got, err := parseAcl(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestBookmark(t *testing.T) {
	t.Parallel()
	cwd, err := os.Getwd()
	require.NoError(t, err)

	tests := []struct {
		arg         string
		wantPath    string
		defaultPath string
	}{
		{arg: "rel/file", wantPath: filepath.ToSlash(filepath.Join(cwd, "rel", "file")), defaultPath: "/"},
		{arg: "rel/dir/", wantPath: filepath.ToSlash(filepath.Join(cwd, "rel", "dir")) + "/", defaultPath: "/"},
		{arg: "user@host:notes.txt", wantPath: "notes.txt", defaultPath: "."},
		{arg: "sftp://host/etc/hosts", wantPath: "/etc/hosts"},
		{arg: "s3://bucket/key", wantPath: "/bucket/key", defaultPath: "/bucket"},
		{arg: "mem://t/a", wantPath: "/a"},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			loc, err := host.ParseLocation(tt.arg)
			require.NoError(t, err)
			h, p, err := bookmark(loc)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, p)
			assert.Equal(t, tt.defaultPath, h.DefaultPath)
		})
	}
}
