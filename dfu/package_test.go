package dfu

import (
	"archive/zip"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDat(t *testing.T, hashType int32) []byte {
	t.Helper()
	return buildPacket(buildInitCommand(hashType), false)
}

type testImage struct {
	name     string
	binData  []byte
	hashType int32
}

func writeTestPackage(t *testing.T, images ...testImage) string {
	t.Helper()

	dir := t.TempDir()
	zipPath := filepath.Join(dir, "pkg.zip")

	f, err := os.Create(zipPath)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)

	manifest := map[string]interface{}{}
	for _, img := range images {
		binFile := img.name + ".bin"
		datFile := img.name + ".dat"

		manifest[img.name] = map[string]string{
			"bin_file": binFile,
			"dat_file": datFile,
		}

		bw, err := zw.Create(binFile)
		require.NoError(t, err)
		_, err = bw.Write(img.binData)
		require.NoError(t, err)

		dw, err := zw.Create(datFile)
		require.NoError(t, err)
		_, err = dw.Write(buildDat(t, img.hashType))
		require.NoError(t, err)
	}

	mw, err := zw.Create("manifest.json")
	require.NoError(t, err)
	raw, err := json.Marshal(map[string]interface{}{"manifest": manifest})
	require.NoError(t, err)
	_, err = mw.Write(raw)
	require.NoError(t, err)

	require.NoError(t, zw.Close())

	return zipPath
}

func TestLoadPackage_ApplicationOnly(t *testing.T) {
	path := writeTestPackage(t, testImage{name: "application", binData: []byte("firmware-bytes"), hashType: int32(HashTypeCRC)})

	pkg, err := LoadPackage(path)
	require.NoError(t, err)
	assert.True(t, pkg.HasApplication())
	assert.False(t, pkg.HasSoftdevice())
	assert.False(t, pkg.HasBootloader())

	img := pkg.Images[ImageApplication]
	assert.Equal(t, []byte("firmware-bytes"), img.BinData)
}

func TestLoadPackage_MultiImage(t *testing.T) {
	path := writeTestPackage(t,
		testImage{name: "softdevice", binData: []byte("sd"), hashType: int32(HashTypeNone)},
		testImage{name: "bootloader", binData: []byte("bl"), hashType: int32(HashTypeNone)},
		testImage{name: "application", binData: []byte("app"), hashType: int32(HashTypeNone)},
	)

	pkg, err := LoadPackage(path)
	require.NoError(t, err)
	assert.True(t, pkg.HasSoftdevice())
	assert.True(t, pkg.HasBootloader())
	assert.True(t, pkg.HasApplication())
}

func TestLoadPackage_BootloaderApplicationWithoutSoftdeviceRejected(t *testing.T) {
	path := writeTestPackage(t,
		testImage{name: "bootloader", binData: []byte("bl"), hashType: int32(HashTypeNone)},
		testImage{name: "application", binData: []byte("app"), hashType: int32(HashTypeNone)},
	)

	_, err := LoadPackage(path)
	assert.Error(t, err)
}

func TestLoadPackage_CombinedSoftdeviceBootloaderSatisfiesInvariant(t *testing.T) {
	path := writeTestPackage(t,
		testImage{name: "softdevice_bootloader", binData: []byte("sdbl"), hashType: int32(HashTypeNone)},
		testImage{name: "application", binData: []byte("app"), hashType: int32(HashTypeNone)},
	)

	pkg, err := LoadPackage(path)
	require.NoError(t, err)
	assert.True(t, pkg.HasSoftdevice())
	assert.True(t, pkg.HasBootloader())
}

func TestLoadPackage_MissingManifest(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "empty.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = LoadPackage(zipPath)
	assert.Error(t, err)
}

func TestLoadPackage_Idempotent(t *testing.T) {
	path := writeTestPackage(t, testImage{name: "application", binData: []byte("stable-bytes"), hashType: int32(HashTypeNone)})

	pkg1, err := LoadPackage(path)
	require.NoError(t, err)
	pkg2, err := LoadPackage(path)
	require.NoError(t, err)

	assert.Equal(t, pkg1.Images[ImageApplication].BinData, pkg2.Images[ImageApplication].BinData)
	assert.Equal(t, pkg1.Images[ImageApplication].InitData, pkg2.Images[ImageApplication].InitData)
}

func TestFirmwareHash_CRC(t *testing.T) {
	path := writeTestPackage(t, testImage{name: "application", binData: []byte("hash-me"), hashType: int32(HashTypeCRC)})
	pkg, err := LoadPackage(path)
	require.NoError(t, err)

	h1, err := pkg.FirmwareHash(ImageApplication)
	require.NoError(t, err)
	h2, err := pkg.FirmwareHash(ImageApplication)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 4)
}

func TestFirmwareHash_None(t *testing.T) {
	path := writeTestPackage(t, testImage{name: "application", binData: []byte("x"), hashType: int32(HashTypeNone)})
	pkg, err := LoadPackage(path)
	require.NoError(t, err)

	h, err := pkg.FirmwareHash(ImageApplication)
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestFirmwareHash_SHA256Reversed(t *testing.T) {
	path := writeTestPackage(t, testImage{name: "application", binData: []byte("reverse-me"), hashType: int32(HashTypeSHA256)})
	pkg, err := LoadPackage(path)
	require.NoError(t, err)

	h, err := pkg.FirmwareHash(ImageApplication)
	require.NoError(t, err)
	require.Len(t, h, 32)

	reversed := reverseBytes(h)
	// reversing twice must recover a plausible forward digest length
	assert.Len(t, reversed, 32)
	assert.NotEqual(t, h, reversed)
}
