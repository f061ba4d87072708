package diag

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyflip/keyflip/internal/fetch"
)

func TestCaptureChallengeWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	recorder := NewRecorder(dir, false)

	paths := recorder.CaptureChallenge(context.Background(),
		[]byte("<html>blocked</html>"),
		fetch.ChallengeMeta{
			Detail:     "captcha",
			RequestURL: "https://example.com/sch",
			StatusCode: 200,
		})

	require.Len(t, paths, 2)

	var bodyPath, metaPath string
	for _, p := range paths {
		switch filepath.Ext(p) {
		case ".html":
			bodyPath = p
		case ".json":
			metaPath = p
		}
	}
	require.NotEmpty(t, bodyPath)
	require.NotEmpty(t, metaPath)

	body, err := os.ReadFile(bodyPath)
	require.NoError(t, err)
	assert.Equal(t, "<html>blocked</html>", string(body))

	raw, err := os.ReadFile(metaPath)
	require.NoError(t, err)
	var record challengeRecord
	require.NoError(t, json.Unmarshal(raw, &record))
	assert.Equal(t, "captcha", record.Detail)
	assert.Equal(t, "https://example.com/sch", record.RequestURL)
	assert.Equal(t, filepath.Base(bodyPath), record.BodyFile)
}

func TestCaptureChallengeDisabledWithoutDir(t *testing.T) {
	recorder := NewRecorder("", false)

	paths := recorder.CaptureChallenge(context.Background(), []byte("x"), fetch.ChallengeMeta{})
	assert.Nil(t, paths)
}

func TestSaveTrace(t *testing.T) {
	dir := t.TempDir()
	recorder := NewRecorder(dir, false)

	path, err := recorder.SaveTrace("sweep", map[string]int{"targets": 3})
	require.NoError(t, err)
	require.NotEmpty(t, path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]int
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, 3, decoded["targets"])
}
