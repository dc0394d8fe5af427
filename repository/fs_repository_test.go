package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/reglet-dev/reglet-lazy/lazy"
	"github.com/reglet-dev/reglet-lazy/lockfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wasmHeader = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func install(t *testing.T, root, name string, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ArtifactFile), wasmHeader, 0o644))
	for file, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(content), 0o644))
	}
	return dir
}

func TestFSRepository_Find(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("Found", func(t *testing.T) {
		root := t.TempDir()
		dir := install(t, root, "click", nil)

		repo := NewFSRepository(WithRoots(root))
		art, err := repo.Find(ctx, "click")
		require.NoError(t, err)
		assert.Equal(t, "click", art.Name)
		assert.Equal(t, dir, art.Dir)

		data, err := art.ReadWASM()
		require.NoError(t, err)
		assert.Equal(t, wasmHeader, data)
	})

	t.Run("NotFound", func(t *testing.T) {
		root := t.TempDir()
		repo := NewFSRepository(WithRoots(root))

		_, err := repo.Find(ctx, "fake_module")
		require.Error(t, err)
		assert.True(t, errors.Is(err, lazy.ErrNotInstalled))

		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, []string{root}, nf.Searched)
	})

	t.Run("FirstRootWins", func(t *testing.T) {
		first, second := t.TempDir(), t.TempDir()
		install(t, second, "click", nil)
		repo := NewFSRepository(WithRoots(first, second))

		art, err := repo.Find(ctx, "click")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(second, "click"), art.Dir)

		install(t, first, "click", nil)
		art, err = repo.Find(ctx, "click")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(first, "click"), art.Dir)
	})

	t.Run("InstalledLater", func(t *testing.T) {
		root := t.TempDir()
		repo := NewFSRepository(WithRoots(root))

		_, err := repo.Find(ctx, "click")
		require.Error(t, err)

		install(t, root, "click", nil)
		_, err = repo.Find(ctx, "click")
		assert.NoError(t, err)
	})

	t.Run("NestedName", func(t *testing.T) {
		root := t.TempDir()
		install(t, root, "flytekitplugins/deck", nil)
		repo := NewFSRepository(WithRoots(root))

		art, err := repo.Find(ctx, "flytekitplugins/deck")
		require.NoError(t, err)
		assert.Equal(t, "flytekitplugins/deck", art.Name)
	})

	t.Run("DirectoryWithoutArtifact", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(root, "click"), 0o755))
		repo := NewFSRepository(WithRoots(root))

		_, err := repo.Find(ctx, "click")
		assert.ErrorIs(t, err, lazy.ErrNotInstalled)
	})

	t.Run("MissingRoot", func(t *testing.T) {
		repo := NewFSRepository(WithRoots(filepath.Join(t.TempDir(), "absent")))
		_, err := repo.Find(ctx, "click")
		assert.ErrorIs(t, err, lazy.ErrNotInstalled)
	})
}

func TestFSRepository_PathTraversal(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	repo := NewFSRepository(WithRoots(root))

	for _, name := range []string{"../../etc", "..", "a/../../b", "/etc/passwd", `..\windows`, "", "a//b", "bad name"} {
		t.Run(name, func(t *testing.T) {
			_, err := repo.Find(context.Background(), name)
			require.Error(t, err)
			assert.ErrorIs(t, err, lazy.ErrNotInstalled)
		})
	}
}

func TestValidateName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "click", false},
		{"underscore", "fake_module", false},
		{"dotted", "flytekitplugins.deck", false},
		{"nested", "org/tool", false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"parent", "..", true},
		{"current", "a/./b", true},
		{"absolute", "/abs", true},
		{"trailing slash", "click/", true},
		{"space", "a b", true},
		{"too long", string(make([]byte, 65)), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateName(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestArtifact_ReadManifest(t *testing.T) {
	t.Parallel()

	t.Run("JSONPreferred", func(t *testing.T) {
		root := t.TempDir()
		install(t, root, "click", map[string]string{
			"metadata.json": `{"name":"click","version":"8.1.7"}`,
			"metadata.yaml": "name: other\n",
		})
		repo := NewFSRepository(WithRoots(root))
		art, err := repo.Find(context.Background(), "click")
		require.NoError(t, err)

		meta, err := art.ReadManifest()
		require.NoError(t, err)
		require.NotNil(t, meta)
		assert.Equal(t, "click", meta.Name)
		assert.Equal(t, "8.1.7", meta.Version)
	})

	t.Run("YAML", func(t *testing.T) {
		root := t.TempDir()
		install(t, root, "click", map[string]string{"metadata.yaml": "name: click\nexports: [run]\n"})
		art := &Artifact{Name: "click", Dir: filepath.Join(root, "click")}

		meta, err := art.ReadManifest()
		require.NoError(t, err)
		assert.Equal(t, []string{"run"}, meta.Exports)
	})

	t.Run("Absent", func(t *testing.T) {
		root := t.TempDir()
		install(t, root, "click", nil)
		art := &Artifact{Name: "click", Dir: filepath.Join(root, "click")}

		meta, err := art.ReadManifest()
		require.NoError(t, err)
		assert.Nil(t, meta)
	})

	t.Run("Malformed", func(t *testing.T) {
		root := t.TempDir()
		install(t, root, "click", map[string]string{"metadata.json": "{"})
		art := &Artifact{Name: "click", Dir: filepath.Join(root, "click")}

		_, err := art.ReadManifest()
		assert.Error(t, err)
	})
}

func TestArtifact_ReadDigest(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	want := lockfile.SHA256(wasmHeader)
	install(t, root, "pinned", map[string]string{DigestFile: want.String() + "\n"})
	install(t, root, "unpinned", nil)

	got, err := (&Artifact{Dir: filepath.Join(root, "pinned")}).ReadDigest()
	require.NoError(t, err)
	assert.True(t, want.Equals(got))

	got, err = (&Artifact{Dir: filepath.Join(root, "unpinned")}).ReadDigest()
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestDefaultRoots(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	t.Setenv(EnvSearchPath, a+string(os.PathListSeparator)+b)
	assert.Equal(t, []string{a, b}, DefaultRoots())

	t.Setenv(EnvSearchPath, "")
	roots := DefaultRoots()
	require.Len(t, roots, 1)
	assert.Equal(t, "capabilities", filepath.Base(roots[0]))
}

func TestArtifact_SizeLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	root := t.TempDir()
	install(t, root, "click", nil)

	repo := NewFSRepository(WithRoots(root), WithMaxArtifactSize(int64(len(wasmHeader))))
	art, err := repo.Find(ctx, "click")
	require.NoError(t, err)
	data, err := art.ReadWASM()
	require.NoError(t, err)
	assert.Len(t, data, len(wasmHeader))

	repo = NewFSRepository(WithRoots(root), WithMaxArtifactSize(4))
	art, err = repo.Find(ctx, "click")
	require.NoError(t, err)
	_, err = art.ReadWASM()
	require.Error(t, err)
	assert.True(t, IsSizeLimit(err))
	assert.Contains(t, err.Error(), "4 bytes")

	art.MaxSize = 0
	data, err = art.ReadWASM()
	require.NoError(t, err)
	assert.Equal(t, wasmHeader, data)
}

func TestFormatSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "512 bytes", formatSize(512))
	assert.Equal(t, "1.5 KB", formatSize(1536))
	assert.Equal(t, "64.0 MB", formatSize(DefaultMaxArtifactSize))
	assert.Equal(t, "2.0 GB", formatSize(2<<30))
}

func TestFSRepository_UnreadableCapability(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for this user")
	}
	t.Parallel()

	root := t.TempDir()
	dir := install(t, root, "click", nil)
	require.NoError(t, os.Chmod(dir, 0o000))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	repo := NewFSRepository(WithRoots(root))
	_, err := repo.Find(context.Background(), "click")
	require.Error(t, err)
	assert.False(t, errors.Is(err, lazy.ErrNotInstalled))
	assert.ErrorIs(t, err, os.ErrPermission)
}

func TestFSRepository_FileInPlaceOfDirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "click"), []byte("x"), 0o644))

	repo := NewFSRepository(WithRoots(root))
	_, err := repo.Find(context.Background(), "click")
	assert.ErrorIs(t, err, lazy.ErrNotInstalled)
}
