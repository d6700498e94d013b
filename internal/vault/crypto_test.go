package vault

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ferry/internal/checksum"
	"github.com/bamsammich/ferry/internal/errdefs"
	"github.com/bamsammich/ferry/internal/feature"
	"github.com/bamsammich/ferry/internal/filter"
	"github.com/bamsammich/ferry/internal/host"
	"github.com/bamsammich/ferry/internal/remote"
	"github.com/bamsammich/ferry/internal/transfer"
	"github.com/bamsammich/ferry/internal/transport/memory"
)

const testPassphrase = "correct horse"

var testOptions = Options{ScryptN: 16}

type fixture struct {
	backend *memory.Backend
	native  *feature.Registry
	vaults  *Registry
	vault   *CryptoVault
	root    *remote.Path
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := memory.New()
	native := feature.NewRegistry(b.Features()...)
	root := remote.Parse("/home/vault", remote.Directory)
	b.Put("/home/.keep", nil)

	v, err := Create(context.Background(), native, root, testPassphrase, testOptions)
	require.NoError(t, err)
	vaults := NewRegistry()
	require.NoError(t, vaults.Add(v))
	return &fixture{backend: b, native: native, vaults: vaults, vault: v, root: root}
}

func feat[T any](f *fixture, k feature.Key[T]) T {
	var zero T
	return Decorate(f.vaults, k, feature.Lookup(f.native, k, zero))
}

func (f *fixture) put(t *testing.T, p *remote.Path, data []byte, expected checksum.Checksum) error {
	t.Helper()
	status := transfer.NewStatus()
	status.Length = int64(len(data))
	status.Checksum = expected
	_, err := transfer.Upload(context.Background(), feat(f, feature.WriteKey), p, bytes.NewReader(data), status, transfer.Options{})
	return err
}

func (f *fixture) get(t *testing.T, p *remote.Path, offset int64) []byte {
	t.Helper()
	status := transfer.NewStatus()
	status.Offset = offset
	r, err := feat(f, feature.ReadKey).Read(context.Background(), p, status)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return data
}

func TestSizeTranslation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		clear, stored int64
	}{
		{0, int64(headerSize) + tagSize},
		{1, int64(headerSize) + 1 + tagSize},
		{chunkSize, int64(headerSize) + chunkSize + tagSize},
		{chunkSize + 1, int64(headerSize) + chunkSize + tagSize + 1 + tagSize},
		{3 * chunkSize, int64(headerSize) + 3*(chunkSize+tagSize)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.stored, CiphertextSize(tt.clear), "clear %d", tt.clear)
		assert.Equal(t, tt.clear, CleartextSize(tt.stored), "stored %d", tt.stored)
	}
	assert.Equal(t, transfer.UnknownLength, CiphertextSize(transfer.UnknownLength))
	assert.Equal(t, int64(-1), CleartextSize(int64(headerSize)+5))
	assert.Equal(t, int64(-1), CleartextSize(3))
}

func TestRoundTripHidesNamesAndContent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	p := remote.New(f.root, "secret.txt", remote.File)

	require.NoError(t, f.put(t, p, []byte("attack at dawn"), checksum.None))
	assert.Equal(t, []byte("attack at dawn"), f.get(t, p, 0))
	assert.Equal(t, []byte("at dawn"), f.get(t, p, 7))

	stored := f.backend.Names("/home/vault")
	require.Len(t, stored, 2)
	assert.Contains(t, stored, ConfigName)
	for _, name := range stored {
		assert.NotContains(t, name, "secret")
		if name != ConfigName {
			data, ok := f.backend.Get("/home/vault/" + name)
			require.True(t, ok)
			assert.False(t, bytes.Contains(data, []byte("attack")))
			assert.Equal(t, CiphertextSize(14), int64(len(data)))
		}
	}
}

func TestMultiChunkRoundTrip(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	data := make([]byte, 2*chunkSize+123)
	_, err := rand.Read(data)
	require.NoError(t, err)
	p := remote.New(f.root, "big.bin", remote.File)

	require.NoError(t, f.put(t, p, data, checksum.None))
	assert.Equal(t, data, f.get(t, p, 0))
	assert.Equal(t, data[chunkSize+5:], f.get(t, p, chunkSize+5))

	attrs, err := feat(f, feature.StatKey).Stat(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), attrs.Size)
}

func TestZeroLengthAndFullChunk(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	for name, data := range map[string][]byte{"empty": {}, "full": bytes.Repeat([]byte{7}, chunkSize)} {
		p := remote.New(f.root, name, remote.File)
		require.NoError(t, f.put(t, p, data, checksum.None))
		assert.Equal(t, len(data), len(f.get(t, p, 0)), name)
	}
}

func TestListDecryptsAndHidesConfig(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	sub, err := feat(f, feature.DirectoryKey).Mkdir(ctx, remote.New(f.root, "docs", remote.Directory), transfer.NewStatus())
	require.NoError(t, err)
	assert.Equal(t, "/home/vault/docs", sub.Abs())

	require.NoError(t, f.put(t, remote.New(sub, "b.txt", remote.File), []byte("bb"), checksum.None))
	require.NoError(t, f.put(t, remote.New(sub, "a.txt", remote.File), []byte("a"), checksum.None))
	require.NoError(t, f.put(t, remote.New(f.root, "top", remote.File), nil, checksum.None))
	f.backend.Put("/home/vault/stray", []byte("not ours"))

	var chunks int
	top, err := feat(f, feature.ListKey).List(ctx, f.root, feature.ListenerFunc(func(*remote.Path, remote.List) { chunks++ }))
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "docs", top[0].Name())
	assert.Equal(t, "top", top[1].Name())
	assert.Equal(t, 1, chunks)

	inner, err := feat(f, feature.ListKey).List(ctx, sub, nil)
	require.NoError(t, err)
	require.Len(t, inner, 2)
	assert.Equal(t, "/home/vault/docs/a.txt", inner[0].Abs())
	assert.Equal(t, int64(2), inner[1].Attributes().Size)

	found, err := feat(f, feature.SearchKey).Search(ctx, sub, filter.NewPrefix("B"), nil)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "b.txt", found[0].Name())

	_, err = feat(f, feature.SearchKey).Search(ctx, remote.New(f.root, "missing", remote.Directory), filter.All, nil)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestChecksumMismatchThroughVault(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	p := remote.New(f.root, "f", remote.File)
	wrong, err := checksum.Sum(checksum.SHA256, []byte("something else"))
	require.NoError(t, err)

	err = f.put(t, p, []byte("payload"), wrong)
	require.ErrorIs(t, err, errdefs.ErrChecksumMismatch)
	assert.Equal(t, []string{ConfigName}, f.backend.Names("/home/vault"))

	right, err := checksum.Sum(checksum.SHA256, []byte("payload"))
	require.NoError(t, err)
	require.NoError(t, f.put(t, p, []byte("payload"), right))
}

func TestBackendCorruptionThroughVault(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.backend.Corrupt(func(_ string, data []byte) []byte { data[len(data)-1] ^= 1; return data })

	err := f.put(t, remote.New(f.root, "f", remote.File), []byte("payload"), checksum.None)
	require.ErrorIs(t, err, errdefs.ErrChecksumMismatch)
	assert.Equal(t, []string{ConfigName}, f.backend.Names("/home/vault"))
}

func TestTamperedContentFailsRead(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	p := remote.New(f.root, "f", remote.File)
	require.NoError(t, f.put(t, p, []byte("payload"), checksum.None))

	for _, name := range f.backend.Names("/home/vault") {
		if name == ConfigName {
			continue
		}
		data, _ := f.backend.Get("/home/vault/" + name)
		data[headerSize] ^= 0xff
		f.backend.Put("/home/vault/"+name, data)
	}
	r, err := feat(f, feature.ReadKey).Read(context.Background(), p, transfer.NewStatus())
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	assert.ErrorIs(t, err, errdefs.ErrChecksumMismatch)
}

func TestDeleteThroughVault(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	p := remote.New(f.root, "f", remote.File)
	require.NoError(t, f.put(t, p, []byte("x"), checksum.None))

	var deleted []string
	err := feat(f, feature.DeleteKey).Delete(context.Background(), []*remote.Path{p}, nil,
		feature.DeleteFunc(func(p *remote.Path) { deleted = append(deleted, p.Abs()) }))
	require.NoError(t, err)
	assert.Equal(t, []string{"/home/vault/f"}, deleted)
	assert.Equal(t, []string{ConfigName}, f.backend.Names("/home/vault"))
}

func TestPathOnlyFeaturesReachBackend(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	p := remote.New(f.root, "f", remote.File)
	require.NoError(t, f.put(t, p, []byte("x"), checksum.None))

	acl := remote.NewAcl(remote.Grant{User: remote.User{Kind: remote.Others}, Role: remote.RoleRead})
	require.NoError(t, feat(f, feature.AclPermissionKey).WriteAcl(ctx, p, acl, false))
	got, err := feat(f, feature.AclPermissionKey).ReadAcl(ctx, p)
	require.NoError(t, err)
	assert.True(t, acl.Equal(got))

	region, err := feat(f, feature.LocationKey).Location(ctx, p)
	require.NoError(t, err)
	assert.True(t, region.IsUnknown())

	accel := feat(f, feature.TransferAccelerationKey)
	require.NoError(t, accel.SetStatus(ctx, p, true))
	on, err := accel.Status(ctx, remote.Parse("/home/other", remote.File))
	require.NoError(t, err)
	assert.True(t, on, "acceleration is per volume")
}

func TestUnlock(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	bookmark := host.Host{Protocol: host.ProtocolMemory, Hostname: "local"}
	p := remote.New(f.root, "f", remote.File)
	require.NoError(t, f.put(t, p, []byte("kept"), checksum.None))

	prompt := &scriptedPrompt{answers: []string{"wrong", testPassphrase}}
	v, err := Unlock(ctx, f.native, f.root, bookmark, nil, prompt, testOptions)
	require.NoError(t, err)
	assert.Equal(t, 2, prompt.calls)
	assert.Contains(t, prompt.reasons[1], "Wrong passphrase")

	// A second unlock decrypts what the first vault wrote.
	vaults := NewRegistry()
	require.NoError(t, vaults.Add(v))
	r, err := Decorate(vaults, feature.ReadKey, feature.Lookup[feature.Read](f.native, feature.ReadKey, nil)).
		Read(ctx, p, transfer.NewStatus())
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "kept", string(data))
}

func TestUnlockFromPasswordStore(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	store := staticStore{PasswordUser(f.root): testPassphrase}
	v, err := Unlock(context.Background(), f.native, f.root, host.Host{}, store, nil, testOptions)
	require.NoError(t, err)
	assert.False(t, v.Locked())
}

func TestUnlockFailures(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	prompt := &scriptedPrompt{answers: []string{"a", "b", "c", testPassphrase}}
	_, err := Unlock(ctx, f.native, f.root, host.Host{}, nil, prompt, testOptions)
	assert.ErrorIs(t, err, errdefs.ErrAccessDenied)
	assert.Equal(t, 3, prompt.calls)

	_, err = Unlock(ctx, f.native, f.root, host.Host{}, nil, feature.DisabledLoginCallback{}, testOptions)
	assert.ErrorIs(t, err, errdefs.ErrLoginCanceled)

	_, err = Unlock(ctx, f.native, remote.Parse("/home", remote.Directory), host.Host{}, nil, nil, testOptions)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestCreateRefusesExistingVault(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, err := Create(context.Background(), f.native, f.root, testPassphrase, testOptions)
	assert.ErrorIs(t, err, ErrVaultExists)
	_, err = Create(context.Background(), f.native, remote.Parse("/x", remote.Directory), "", testOptions)
	assert.Error(t, err)
}

func TestLockedVaultRefusesWork(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.vault.Lock()
	assert.True(t, f.vault.Locked())
	err := f.put(t, remote.New(f.root, "f", remote.File), []byte("x"), checksum.None)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestNamesBindParentDirectory(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	k, err := f.vault.current()
	require.NoError(t, err)

	enc := k.encryptName("/a", "name")
	assert.Equal(t, enc, k.encryptName("/a", "name"))
	assert.NotEqual(t, enc, k.encryptName("/b", "name"))
	assert.False(t, strings.ContainsAny(enc, "/+="))

	got, err := k.decryptName("/a", enc)
	require.NoError(t, err)
	assert.Equal(t, "name", got)
	_, err = k.decryptName("/b", enc)
	assert.Error(t, err)
}

type scriptedPrompt struct {
	answers []string
	calls   int
	reasons []string
}

func (s *scriptedPrompt) Prompt(_ context.Context, _ host.Host, creds *host.Credentials, _, reason string, _ feature.LoginOptions) error {
	if s.calls >= len(s.answers) {
		return errdefs.ErrLoginCanceled
	}
	creds.Password = s.answers[s.calls]
	s.calls++
	s.reasons = append(s.reasons, reason)
	return nil
}

type staticStore map[string]string

func (s staticStore) Password(_ host.Protocol, _ int, _, user string) (string, bool) {
	pass, ok := s[user]
	return pass, ok
}
