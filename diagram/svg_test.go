package diagram

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInlineSVGImages(t *testing.T) {
	dir := t.TempDir()
	icon := filepath.Join(dir, "icon.png")
	require.NoError(t, os.WriteFile(icon, []byte("PNGDATA"), 0o644))
	payload := base64.StdEncoding.EncodeToString([]byte("PNGDATA"))

	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.png")
	require.NoError(t, os.WriteFile(secret, []byte("nope"), 0o644))

	tests := []struct {
		name    string
		svg     string
		want    string
		changed bool
	}{
		{
			name:    "relative xlink href",
			svg:     `<image xlink:href="icon.png"/>`,
			want:    `<image xlink:href="data:image/png;base64,` + payload + `"/>`,
			changed: true,
		},
		{
			name:    "absolute href single quotes",
			svg:     `<image href='` + icon + `'/>`,
			want:    `<image href='data:image/png;base64,` + payload + `'/>`,
			changed: true,
		},
		{
			name:    "file url",
			svg:     `<image xlink:href="file://` + filepath.ToSlash(icon) + `"/>`,
			want:    `<image xlink:href="data:image/png;base64,` + payload + `"/>`,
			changed: true,
		},
		{
			name: "remote href untouched",
			svg:  `<image xlink:href="https://example.com/a.png"/>`,
			want: `<image xlink:href="https://example.com/a.png"/>`,
		},
		{
			name: "fragment untouched",
			svg:  `<use href="#node1"/>`,
			want: `<use href="#node1"/>`,
		},
		{
			name: "data uri untouched",
			svg:  `<image href="data:image/png;base64,AAAA"/>`,
			want: `<image href="data:image/png;base64,AAAA"/>`,
		},
		{
			name: "missing file untouched",
			svg:  `<image href="missing.png"/>`,
			want: `<image href="missing.png"/>`,
		},
		{
			name: "outside roots untouched",
			svg:  `<image href="` + secret + `"/>`,
			want: `<image href="` + secret + `"/>`,
		},
		{
			name: "traversal untouched",
			svg:  `<image href="../` + filepath.Base(outside) + `/secret.png"/>`,
			want: `<image href="../` + filepath.Base(outside) + `/secret.png"/>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, changed := InlineSVGImages([]byte(tt.svg), dir, []string{dir})
			assert.Equal(t, tt.want, string(out))
			assert.Equal(t, tt.changed, changed)
		})
	}
}

func TestInlineSVGFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logo.svg"), []byte("<svg/>"), 0o644))
	svgPath := filepath.Join(dir, "out.svg")
	require.NoError(t, os.WriteFile(svgPath, []byte(`<svg><image xlink:href="logo.svg"/></svg>`), 0o644))

	require.NoError(t, InlineSVGFile(svgPath, []string{dir}))
	data, err := os.ReadFile(svgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "data:image/svg+xml;base64,")

	assert.Error(t, InlineSVGFile(filepath.Join(dir, "missing.svg"), []string{dir}))
}

func TestMimeType(t *testing.T) {
	assert.Equal(t, "image/png", mimeType("a.PNG"))
	assert.Equal(t, "application/octet-stream", mimeType("a.unknownext"))
}
