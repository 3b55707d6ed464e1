package modref_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deislabs/wagi-go/internal/modref"
)

func TestResolve_LocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "module.wasm")
	content := []byte("\x00asm\x01\x00\x00\x00fake-module-bytes")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	r := &modref.Resolver{}
	bytes, err := r.Resolve(context.Background(), modref.Reference{Kind: modref.KindLocalFile, Path: path})
	require.NoError(t, err)
	assert.Equal(t, content, bytes.Raw)
	assert.NotEmpty(t, bytes.Hash)
}

func TestNewBytes_SameContentSameHash(t *testing.T) {
	a := modref.NewBytes([]byte("identical"))
	b := modref.NewBytes([]byte("identical"))
	assert.Equal(t, a.Hash, b.Hash)

	c := modref.NewBytes([]byte("different"))
	assert.NotEqual(t, a.Hash, c.Hash)
}

func TestResolve_LocalFile_NotFound(t *testing.T) {
	r := &modref.Resolver{}
	_, err := r.Resolve(context.Background(), modref.Reference{Kind: modref.KindLocalFile, Path: "/nonexistent/module.wasm"})
	require.Error(t, err)
	var resolveErr *modref.ResolveError
	require.ErrorAs(t, err, &resolveErr)
}

func TestResolve_LocalFile_RejectsWat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "module.wat")
	require.NoError(t, os.WriteFile(path, []byte("(module)"), 0o644))

	r := &modref.Resolver{}
	_, err := r.Resolve(context.Background(), modref.Reference{Kind: modref.KindLocalFile, Path: path})
	require.Error(t, err)
	assert.ErrorIs(t, err, modref.ErrWatUnsupported)
}

func TestResolve_LocalFile_TooLarge(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "module.wasm")
	big := make([]byte, modref.MaxLocalModuleSize+1)
	require.NoError(t, os.WriteFile(path, big, 0o644))

	r := &modref.Resolver{}
	_, err := r.Resolve(context.Background(), modref.Reference{Kind: modref.KindLocalFile, Path: path})
	require.Error(t, err)
}

func TestResolve_LocalFile_RejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	r := &modref.Resolver{}
	_, err := r.Resolve(context.Background(), modref.Reference{Kind: modref.KindLocalFile, Path: dir})
	require.Error(t, err)
}

func TestResolve_UnknownKind(t *testing.T) {
	r := &modref.Resolver{}
	_, err := r.Resolve(context.Background(), modref.Reference{Kind: modref.Kind(99)})
	require.Error(t, err)
}

func TestResolve_Bindle_NoStoreConfigured(t *testing.T) {
	r := &modref.Resolver{}
	_, err := r.Resolve(context.Background(), modref.Reference{Kind: modref.KindBindle, Invoice: "a/1.0.0", Parcel: "deadbeef"})
	require.Error(t, err)
}

func TestReference_String(t *testing.T) {
	cases := []struct {
		ref  modref.Reference
		want string
	}{
		{modref.Reference{Kind: modref.KindLocalFile, Path: "/a/b.wasm"}, "file:///a/b.wasm"},
		{modref.Reference{Kind: modref.KindOci, Image: "registry.example.com/hello:v1"}, "oci:registry.example.com/hello:v1"},
		{modref.Reference{Kind: modref.KindBindle, Invoice: "myorg/hello/1.0.0", Parcel: "abc123"}, "bindle:myorg/hello/1.0.0/abc123"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.ref.String())
	}
}
