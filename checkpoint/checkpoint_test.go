package checkpoint

import (
	"archive/zip"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/digsplat/dig/model"
	"github.com/digsplat/dig/nn"
	"github.com/digsplat/dig/scene"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModel(t *testing.T) *model.Model {
	cfg := model.DefaultConfig()
	cfg.GaussianDim = 4
	cfg.Dim = 6
	cfg.HiddenUnits = 8
	cfg.Seed = 42

	m, err := model.New(cfg, scene.RandomGaussianSet(16, cfg.SHDegree, cfg.GaussianDim, 1, 9), nil)
	require.NoError(t, err)
	m.SetStep(1234)
	return m
}

func tempDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "dig-checkpoint")
	require.NoError(t, err)
	return dir
}

func TestRoundTrip(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "model.zip")

	m := testModel(t)
	require.NoError(t, Write(FromModel(m), path))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1234, c.Step)
	assert.Equal(t, m.Config(), c.Config)

	restored, err := c.Model(nil)
	require.NoError(t, err)
	assert.Equal(t, 1234, restored.Step())
	assert.Equal(t, m.Gaussians().State(), restored.Gaussians().State())
	assert.Equal(t, m.Projection().State(), restored.Projection().State())

	// Restored parameters must be trainable.
	for name, group := range restored.ParamGroups() {
		for _, p := range group {
			assert.True(t, p.RequiresGrad(), "expected %s to track gradients", name)
		}
	}
	assert.Contains(t, restored.ParamGroups(), nn.ParamGroup)
	assert.Equal(t, 4, restored.Gaussians().Get(scene.ParamDinoFeats).Cols())
}

func TestArchiveUsesDeflate(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "model.zip")
	require.NoError(t, Write(FromModel(testModel(t)), path))

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
		assert.Equal(t, zip.Deflate, f.Method, f.Name)
	}
	assert.ElementsMatch(t, []string{configFile, metaFile, gaussiansFile, projectionFile}, names)
}

func TestIncompleteArchive(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "broken.zip")

	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("notes.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = Load(path)
	assert.Equal(t, ErrIncomplete, errors.Cause(err))
}

func TestMismatchedState(t *testing.T) {
	c := FromModel(testModel(t))
	c.Gaussians[0].Rows--
	c.Gaussians[0].Data = c.Gaussians[0].Data[:len(c.Gaussians[0].Data)-3]

	_, err := c.Model(nil)
	assert.Error(t, err)
}
