// Command mkfs formats a cofs image and optionally seeds its root directory
// with files given on the command line.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/MrBad/cofs"
	"github.com/MrBad/cofs/block"
	"github.com/MrBad/cofs/mkfs"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:      "mkfs",
		Usage:     "format a cofs image and optionally seed it with files",
		ArgsUsage: "IMAGE [FILE...]",
		Action:    formatImage,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "mkfs:", err)
		os.Exit(1)
	}
}

func formatImage(c *cli.Context) error {
	if c.Args().Len() < 1 {
		return cli.Exit("usage: mkfs IMAGE [FILE...]", 1)
	}
	imagePath := c.Args().First()
	seedPaths := c.Args().Slice()[1:]

	f, err := os.OpenFile(imagePath, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 || info.Size()%cofs.BlockSize != 0 {
		return fmt.Errorf("%s: size %d is not a positive multiple of %d bytes", imagePath, info.Size(), cofs.BlockSize)
	}
	totalBlocks := uint32(info.Size() / cofs.BlockSize)

	device := block.NewStreamDevice(f, totalBlocks)
	builder, err := mkfs.New(device)
	if err != nil {
		return err
	}

	seeds := make(map[string][]byte, len(seedPaths))
	for _, path := range seedPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		seeds[filepath.Base(path)] = data
	}
	if err := builder.SeedFiles(seeds); err != nil {
		return err
	}

	if err := builder.Flush(); err != nil {
		return err
	}

	fmt.Printf("formatted %s: %d blocks, %d inodes\n", imagePath, builder.Super.Size, builder.Super.NumInodes)
	return nil
}
