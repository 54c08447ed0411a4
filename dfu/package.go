// Copyright (C) 2018 Rob Caelers <rob.caelers@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package dfu

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/json"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"
)

// ImageType identifies which slot of the target's memory an image
// updates. The manifest's own keys ("softdevice", "application",
// "bootloader") are the source of truth; this type exists so the rest
// of the driver can switch on it instead of on strings.
type ImageType int

const (
	ImageSoftdevice ImageType = iota
	ImageBootloader
	ImageApplication
)

func (t ImageType) String() string {
	switch t {
	case ImageSoftdevice:
		return "softdevice"
	case ImageBootloader:
		return "bootloader"
	case ImageApplication:
		return "application"
	default:
		return "unknown"
	}
}

// Image is one firmware image extracted from a DFU package: its binary,
// its parsed init packet, and any manifest fields this driver does not
// otherwise model.
type Image struct {
	Type     ImageType
	BinData  []byte
	InitData []byte
	Init     *InitPacket
	Meta     map[string]interface{}
}

// manifestFile mirrors the subset of manifest.json this driver reads;
// unrecognized keys land in Image.Meta rather than being discarded.
type manifestFile struct {
	Manifest map[string]json.RawMessage `json:"manifest"`
}

type manifestImage struct {
	BinFile  string `json:"bin_file"`
	DatFile  string `json:"dat_file"`
}

// Package is a loaded Secure DFU distribution package (a .zip containing
// manifest.json plus one or more image/init-packet pairs).
type Package struct {
	Images map[ImageType]*Image

	// combinedSoftdeviceBootloader records that the manifest named a
	// "softdevice_bootloader" entry: a single bin/dat pair flashing
	// both the softdevice and the bootloader. It is filed under
	// ImageBootloader in Images (there is no separate softdevice
	// binary to extract), but it still satisfies the softdevice
	// invariant, so HasSoftdevice consults this flag too.
	combinedSoftdeviceBootloader bool
}

var manifestKeyToType = map[string]ImageType{
	"softdevice":            ImageSoftdevice,
	"bootloader":            ImageBootloader,
	"application":           ImageApplication,
	"softdevice_bootloader": ImageBootloader,
}

// LoadPackage opens a DFU distribution zip at path, reads manifest.json,
// and extracts every referenced image's binary and init packet.
//
// Invariant: a bootloader+application combination is only valid
// alongside a softdevice image (or a combined softdevice_bootloader
// entry); rejected at load time, matching SecureDFUManager.__init__'s
// assertion in the Python source.
func LoadPackage(path string) (*Package, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, NewError(CodeFileInvalid, errors.Wrap(err, "opening DFU package"))
	}
	defer zr.Close()

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	manifestZf, ok := files["manifest.json"]
	if !ok {
		return nil, NewError(CodeFileInvalid, errors.New("DFU package missing manifest.json"))
	}

	raw, err := readZipFile(manifestZf)
	if err != nil {
		return nil, NewError(CodeFileInvalid, errors.Wrap(err, "reading manifest.json"))
	}

	var mf manifestFile
	if err := json.Unmarshal(raw, &mf); err != nil {
		return nil, NewError(CodeFileInvalid, errors.Wrap(err, "parsing manifest.json"))
	}

	pkg := &Package{Images: make(map[ImageType]*Image)}

	for key, rawImg := range mf.Manifest {
		imgType, ok := manifestKeyToType[key]
		if !ok {
			continue
		}
		if key == "softdevice_bootloader" {
			pkg.combinedSoftdeviceBootloader = true
		}

		var mi manifestImage
		if err := json.Unmarshal(rawImg, &mi); err != nil {
			return nil, NewError(CodeFileInvalid, errors.Wrapf(err, "parsing manifest entry %q", key))
		}

		var meta map[string]interface{}
		if err := json.Unmarshal(rawImg, &meta); err != nil {
			return nil, NewError(CodeFileInvalid, errors.Wrapf(err, "parsing manifest entry %q", key))
		}
		delete(meta, "bin_file")
		delete(meta, "dat_file")

		binZf, ok := files[mi.BinFile]
		if !ok {
			return nil, NewError(CodeFileInvalid, errors.Errorf("manifest references missing bin file %q", mi.BinFile))
		}
		datZf, ok := files[mi.DatFile]
		if !ok {
			return nil, NewError(CodeFileInvalid, errors.Errorf("manifest references missing dat file %q", mi.DatFile))
		}

		binData, err := readZipFile(binZf)
		if err != nil {
			return nil, NewError(CodeFileInvalid, errors.Wrapf(err, "reading %q", mi.BinFile))
		}
		datData, err := readZipFile(datZf)
		if err != nil {
			return nil, NewError(CodeFileInvalid, errors.Wrapf(err, "reading %q", mi.DatFile))
		}

		init, err := ParseInitPacket(datData)
		if err != nil {
			return nil, err
		}

		pkg.Images[imgType] = &Image{
			Type:     imgType,
			BinData:  binData,
			InitData: datData,
			Init:     init,
			Meta:     meta,
		}
	}

	if len(pkg.Images) == 0 {
		return nil, NewError(CodeFileInvalid, errors.New("DFU package manifest names no recognized image"))
	}

	if pkg.HasBootloader() && pkg.HasApplication() && !pkg.HasSoftdevice() {
		return nil, NewError(CodeFileInvalid, errors.New("package combines bootloader and application images without a softdevice"))
	}

	return pkg, nil
}

// HasSoftdevice reports whether the package carries a softdevice image,
// standalone or as part of a combined softdevice_bootloader entry.
// Matches models/package.py's has_sd, fixed: the Python has_app checks
// "app" in self._images, a field the class never sets, so it always
// reports false. This driver checks the real image map instead.
func (p *Package) HasSoftdevice() bool {
	_, ok := p.Images[ImageSoftdevice]
	return ok || p.combinedSoftdeviceBootloader
}

// HasBootloader reports whether the package carries a bootloader image.
func (p *Package) HasBootloader() bool {
	_, ok := p.Images[ImageBootloader]
	return ok
}

// HasApplication reports whether the package carries an application image.
func (p *Package) HasApplication() bool {
	_, ok := p.Images[ImageApplication]
	return ok
}

// FirmwareHash computes the hash of the named image's binary per the
// hash type declared in its init packet. Returns nil with no error for
// HashTypeNone. SHA-128 is rejected earlier, at LoadPackage time.
func (p *Package) FirmwareHash(t ImageType) ([]byte, error) {
	img, ok := p.Images[t]
	if !ok {
		return nil, NewError(CodeFileInvalid, errors.Errorf("package has no %s image", t))
	}

	switch img.Init.HashType {
	case HashTypeNone:
		return nil, nil
	case HashTypeCRC:
		sum := crc32.ChecksumIEEE(img.BinData)
		b := make([]byte, 4)
		b[0] = byte(sum)
		b[1] = byte(sum >> 8)
		b[2] = byte(sum >> 16)
		b[3] = byte(sum >> 24)
		return b, nil
	case HashTypeSHA256:
		sum := sha256.Sum256(img.BinData)
		return reverseBytes(sum[:]), nil
	case HashTypeSHA512:
		sum := sha512.Sum512(img.BinData)
		return reverseBytes(sum[:]), nil
	default:
		return nil, NewError(CodeExtendedWrongHashType, errors.Errorf("unsupported hash type %s", img.Init.HashType))
	}
}

// reverseBytes returns a reversed copy of b. SDK init packets store
// digests in reverse byte order relative to the stdlib's output.
func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
