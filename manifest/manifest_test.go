package manifest_test

import (
	"testing"

	"github.com/reglet-dev/reglet-lazy/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		file string
		data string
	}{
		{"metadata.json", `{"name":"click","version":"8.1.7","exports":["echo"]}`},
		{"metadata.yaml", "name: click\nversion: 8.1.7\nexports:\n  - echo\n"},
		{"METADATA.YML", "name: click\nversion: 8.1.7\nexports: [echo]\n"},
	}

	for _, tc := range tests {
		t.Run(tc.file, func(t *testing.T) {
			p, err := manifest.ParserFor(tc.file)
			require.NoError(t, err)

			meta, err := p.Parse([]byte(tc.data))
			require.NoError(t, err)
			assert.Equal(t, "click", meta.Name)
			assert.Equal(t, "8.1.7", meta.Version)
			assert.Equal(t, []string{"echo"}, meta.Exports)
		})
	}

	t.Run("Unsupported", func(t *testing.T) {
		_, err := manifest.ParserFor("metadata.toml")
		assert.Error(t, err)
	})

	t.Run("Malformed", func(t *testing.T) {
		_, err := manifest.NewJSONParser().Parse([]byte("{"))
		assert.Error(t, err)
		_, err = manifest.NewYAMLParser().Parse([]byte("name: [unterminated"))
		assert.Error(t, err)
	})
}

func TestSchema(t *testing.T) {
	t.Parallel()

	schema, err := manifest.Schema()
	require.NoError(t, err)
	assert.Contains(t, schema, `"name"`)
	assert.Contains(t, schema, `"required"`)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, manifest.Validate(&manifest.Metadata{Name: "click"}))
	assert.NoError(t, manifest.Validate(&manifest.Metadata{Name: "click", Version: "1.0.0", Exports: []string{"run"}}))
	assert.Error(t, manifest.Validate(&manifest.Metadata{}), "empty name")
}

func TestCheckVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		version    string
		constraint string
		wantErr    bool
	}{
		{name: "no constraint", version: "", constraint: ""},
		{name: "caret match", version: "8.1.7", constraint: "^8.0"},
		{name: "range match", version: "1.2.5", constraint: ">= 1.2, < 2"},
		{name: "too old", version: "7.9.0", constraint: "^8.0", wantErr: true},
		{name: "missing version", version: "", constraint: "^8.0", wantErr: true},
		{name: "invalid version", version: "eight", constraint: "^8.0", wantErr: true},
		{name: "invalid constraint", version: "8.0.0", constraint: "invalid", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := manifest.CheckVersion(&manifest.Metadata{Name: "click", Version: tc.version}, tc.constraint)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}

	t.Run("VersionError", func(t *testing.T) {
		err := manifest.CheckVersion(&manifest.Metadata{Name: "click", Version: "7.0.0"}, "^8.0")
		var verr *manifest.VersionError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "7.0.0", verr.Installed)
		assert.EqualError(t, err, `capability click version 7.0.0 does not satisfy "^8.0"`)
	})
}
