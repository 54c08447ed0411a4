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

package cmd

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rctsang/nrf52-ble-dfu/ble"
	"github.com/rctsang/nrf52-ble-dfu/dfu"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	pb "gopkg.in/cheggaaa/pb.v2"
)

type dfuCommand struct {
	*baseCommand

	target     string
	mode       string
	printInit  []string
	pkgPath    string
}

func newDfuCommand() *dfuCommand {
	c := &dfuCommand{}

	c.baseCommand = newBaseCommand(&cobra.Command{
		Use:   "dfu <pkg_path>",
		Short: "Perform device firmware upgrade",
		Args:  cobra.ExactArgs(1),
		Long: `This command performs a Secure DFU firmware upgrade of an nRF52
device, delivering the images found in pkg_path in bootloader,
softdevice, application order.`,
		Example: `nrf-dfu dfu firmware.zip
nrf-dfu dfu firmware.zip --target MyDfuTarget
nrf-dfu dfu firmware.zip --print-init application`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c.pkgPath = args[0]
			return c.runDfu()
		},
	})

	c.cmd.Flags().StringVar(&c.target, "target", dfu.DefaultTargetName, "advertised name of the DFU target")
	c.cmd.Flags().StringVar(&c.mode, "mode", "S", "update type (L: legacy, O: open, S: secure, B: buttonless)")
	c.cmd.Flags().StringSliceVar(&c.printInit, "print-init", nil, "print parsed init packets for the given image types and exit")
	return c
}

var printInitTypes = map[string]dfu.ImageType{
	"softdevice":  dfu.ImageSoftdevice,
	"bootloader":  dfu.ImageBootloader,
	"application": dfu.ImageApplication,
}

func (c *dfuCommand) runDfu() error {
	if c.mode != "S" {
		return errors.New("mode not supported")
	}

	pkg, err := dfu.LoadPackage(c.pkgPath)
	if err != nil {
		return errors.Wrap(err, "failed to load DFU package")
	}

	if len(c.printInit) > 0 {
		return c.runPrintInit(pkg)
	}

	jww.INFO.Printf("Upgrading firmware of '%s' with '%s'\n", c.target, c.pkgPath)

	gatt, err := ble.NewDefaultClient(dfu.ControlPointUUID, dfu.PacketUUID)
	if err != nil {
		return errors.Wrap(err, "failed to create BLE transport")
	}

	driver := dfu.NewDriver(gatt, c.target, pkg)

	var bar *pb.ProgressBar
	driver.Context.Progress = func(sent, total int64) {
		if bar == nil {
			bar = pb.ProgressBarTemplate(`{{ white "DFU:" }} {{bar . | green}} {{speed . "%s byte/s" | white }}`).Start(100)
		}
		if bar.Total() != total {
			bar.SetTotal(total)
		}
		bar.SetCurrent(sent)
	}

	err = driver.Run(context.Background())
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return errors.Wrap(err, "failed to upgrade device firmware")
	}

	return nil
}

func (c *dfuCommand) runPrintInit(pkg *dfu.Package) error {
	for _, name := range c.printInit {
		imgType, ok := printInitTypes[name]
		if !ok {
			return errors.Errorf("unknown image type %q", name)
		}
		img, ok := pkg.Images[imgType]
		if !ok {
			fmt.Printf("%s: not present in package\n", name)
			continue
		}
		fmt.Printf("%s: hash_type=%s signed=%t init_bytes=%d bin_bytes=%d\n",
			name, img.Init.HashType, img.Init.Signed, len(img.InitData), len(img.BinData))
	}
	return nil
}
