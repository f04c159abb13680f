package main

import (
	"fmt"
	"os"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = serve(os.Args[2:])
	case "run":
		err = runCmd(os.Args[2:])
	case "validate":
		err = validateCmd(os.Args[2:])
	case "version":
		fmt.Println("minizaps v" + version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("minizaps v" + version)
	fmt.Println("Usage:")
	fmt.Println("  minizaps serve [-config config.yaml]")
	fmt.Println("  minizaps run <workflow> [-payload JSON] [-max-retries N]")
	fmt.Println("  minizaps validate <file.yaml>...")
}
