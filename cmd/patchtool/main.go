// patchtool is a CLI utility for working with heightmap patches.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Faultbox/terrastream/internal/config"
	"github.com/Faultbox/terrastream/internal/engine/debug"
	"github.com/Faultbox/terrastream/internal/engine/terrain"
	"github.com/Faultbox/terrastream/internal/network"
	"github.com/Faultbox/terrastream/internal/procgen"
	"github.com/Faultbox/terrastream/internal/world/chunk"
	"github.com/Faultbox/terrastream/pkg/formats"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "info":
		cmdInfo(args)
	case "gen":
		cmdGen(args)
	case "mesh":
		cmdMesh(args)
	case "png":
		cmdPNG(args)
	case "url":
		cmdURL(args)
	case "fetch":
		cmdFetch(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`patchtool - heightmap patch utility

Usage:
  patchtool <command> [options]

Commands:
  info <file.raw>                        Show patch resolution and height range
  gen [-seed N] <cx> <cy> <res> <out>    Write a procedural patch for a chunk
  mesh [-res N] [-scale H] <file.raw>    Build a mesh and print its statistics
  png <file.raw> [out.png]               Render a patch as a grayscale image
  url <host> <cx> <cy>                   Print the fetch URL of a chunk
  fetch <host> <cx> <cy> [out]           Download a patch and show its info

Examples:
  patchtool info patch_36_72.raw
  patchtool gen -seed 1337 72 36 65 patch_36_72.raw
  patchtool mesh -res 33 patch_36_72.raw
  patchtool url http://127.0.0.1:8080/heightmaps 72 36`)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func atoi(name, s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		fail("Invalid %s %q: %v", name, s, err)
	}
	return v
}

func printPatch(name string, p *formats.Patch, bytes int) {
	lo, hi := p.Range()
	fmt.Printf("Patch:      %s\n", name)
	fmt.Printf("Bytes:      %d\n", bytes)
	fmt.Printf("Resolution: %dx%d\n", p.Size, p.Size)
	fmt.Printf("Range:      %.4f .. %.4f\n", lo, hi)
	fmt.Printf("Corners:    %.4f %.4f %.4f %.4f\n",
		p.At(0, 0), p.At(p.Size-1, 0), p.At(0, p.Size-1), p.At(p.Size-1, p.Size-1))
}

func cmdInfo(args []string) {
	if len(args) < 1 {
		fail("Usage: patchtool info <file.raw>")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		fail("Error: %v", err)
	}
	p, err := formats.ParsePatch(data)
	if err != nil {
		fail("Error: %v", err)
	}
	printPatch(args[0], p, len(data))
}

func cmdGen(args []string) {
	defaults := config.Default().World
	fs := flag.NewFlagSet("gen", flag.ExitOnError)
	seed := fs.Int64("seed", defaults.Seed, "World seed")
	size := fs.Float64("chunk-size", defaults.ChunkSize, "Chunk size in world units")
	fs.Parse(args)

	if fs.NArg() < 4 {
		fail("Usage: patchtool gen [-seed N] <cx> <cy> <res> <out.raw>")
	}
	c := chunk.Coord{X: atoi("cx", fs.Arg(0)), Y: atoi("cy", fs.Arg(1))}
	res := atoi("resolution", fs.Arg(2))
	grid := chunk.Grid{Width: defaults.WidthPatches, Height: defaults.HeightPatches, ChunkSize: *size}
	if !grid.Contains(c) {
		fail("Chunk %v outside the %dx%d grid", c, grid.Width, grid.Height)
	}

	hm := procgen.New(*seed).Heightmap(grid, c, res)
	data, err := formats.EncodePatch(hm.Size, hm.Samples)
	if err != nil {
		fail("Error: %v", err)
	}
	if err := os.WriteFile(fs.Arg(3), data, 0o644); err != nil {
		fail("Error: %v", err)
	}
	fmt.Printf("Wrote %s (%dx%d, %d bytes)\n", fs.Arg(3), res, res, len(data))
}

func cmdMesh(args []string) {
	defaults := config.Default().World
	fs := flag.NewFlagSet("mesh", flag.ExitOnError)
	res := fs.Int("res", 0, "Vertex resolution (0 = patch resolution)")
	scale := fs.Float64("scale", float64(defaults.HeightScale), "Height scale")
	size := fs.Float64("chunk-size", defaults.ChunkSize, "Chunk size in world units")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fail("Usage: patchtool mesh [-res N] [-scale H] <file.raw>")
	}
	p, err := formats.ParsePatchFile(fs.Arg(0))
	if err != nil {
		fail("Error: %v", err)
	}
	if *res == 0 {
		*res = p.Size
	}

	start := time.Now()
	mesh, err := terrain.BuildGridMesh(terrain.HeightmapFromPatch(p), terrain.GridParams{
		Resolution:  *res,
		Size:        float32(*size),
		HeightScale: float32(*scale),
	})
	if err != nil {
		fail("Error: %v", err)
	}
	took := time.Since(start)

	fmt.Printf("Vertices:  %d\n", len(mesh.Vertices))
	fmt.Printf("Triangles: %d\n", len(mesh.Indices)/3)
	fmt.Printf("Spacing:   %.3f\n", mesh.Spacing)
	fmt.Printf("Bounds:    %v .. %v\n", mesh.Bounds.Min, mesh.Bounds.Max)
	fmt.Printf("Built in:  %v\n", took)
}

func cmdPNG(args []string) {
	if len(args) < 1 {
		fail("Usage: patchtool png <file.raw> [out.png]")
	}
	p, err := formats.ParsePatchFile(args[0])
	if err != nil {
		fail("Error: %v", err)
	}
	out := strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".png"
	if len(args) > 1 {
		out = args[1]
	}
	if err := debug.WritePNG(out, debug.HeightImage(terrain.HeightmapFromPatch(p))); err != nil {
		fail("Error: %v", err)
	}
	fmt.Printf("Wrote %s (%dx%d)\n", out, p.Size, p.Size)
}

func cmdURL(args []string) {
	if len(args) < 3 {
		fail("Usage: patchtool url <host> <cx> <cy>")
	}
	fmt.Println(network.PatchURL(args[0], atoi("cx", args[1]), atoi("cy", args[2])))
}

func cmdFetch(args []string) {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	timeout := fs.Duration("timeout", 5*time.Second, "Request timeout")
	fs.Parse(args)

	if fs.NArg() < 3 {
		fail("Usage: patchtool fetch <host> <cx> <cy> [out.raw]")
	}
	cx, cy := atoi("cx", fs.Arg(1)), atoi("cy", fs.Arg(2))
	client := network.NewHeightmapClient(fs.Arg(0), *timeout, nil)
	data, err := client.Fetch(context.Background(), cx, cy)
	if err != nil {
		fail("Error: %v", err)
	}
	p, err := formats.ParsePatch(data)
	if err != nil {
		fail("Error: %v", err)
	}
	printPatch(network.PatchURL(fs.Arg(0), cx, cy), p, len(data))

	if out := fs.Arg(3); out != "" {
		if err := os.WriteFile(out, data, 0o644); err != nil {
			fail("Error: %v", err)
		}
		fmt.Printf("Saved to %s\n", out)
	}
}
