// terraintool is a CLI utility for inspecting ring terrain descriptions.
package main

import (
	"fmt"
	"os"

	"github.com/istavang/medea.js/internal/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "validate", "check":
		err = cmdValidate(os.Stdout, args)
	case "lods":
		err = cmdLODs(os.Stdout, args)
	case "simulate", "sim":
		err = cmdSimulate(os.Stdout, args)
	case "preview":
		err = cmdPreview(os.Stdout, args)
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`terraintool - ring terrain description utility

Usage:
  terraintool <command> [options] <terrain.yaml>

Commands:
  validate <desc>                 Parse the description and check every LOD tile
  lods <desc>                     Print the LOD table
  simulate [options] <desc>       Stream rings headlessly along a camera path
  preview [options] <desc>        Write a LOD heightmap as a WebP image

Examples:
  terraintool validate maps/alps.yaml
  terraintool lods maps/alps.yaml
  terraintool simulate -steps 8 -dx 32 -cells 32 maps/alps.yaml
  terraintool preview -lod 2 -size 256 -o alps.webp maps/alps.yaml`)
}
