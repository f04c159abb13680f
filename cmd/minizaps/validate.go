package main

import (
	"errors"
	"fmt"

	"github.com/soochol/minizaps/internal/connectors"
	"github.com/soochol/minizaps/internal/definition"
)

// validateCmd checks definition files and reports steps whose connector
// type is not registered.
func validateCmd(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: minizaps validate <file.yaml>...")
	}
	registry := connectors.NewDefaultRegistry(0)

	failed := 0
	for _, path := range args {
		wf, err := definition.LoadFile(path)
		if err != nil {
			fmt.Printf("%s %s: %v\n", red("FAIL"), path, err)
			failed++
			continue
		}
		for i, step := range wf.Steps {
			if _, ok := registry.Get(step.Type); !ok {
				fmt.Printf("%s %s: step %d uses unknown connector %q\n", yellow("WARN"), path, i+1, step.Type)
			}
		}
		fmt.Printf("%s %s: %s (%d steps)\n", green("OK"), path, wf.Name, len(wf.Steps))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d definitions invalid", failed, len(args))
	}
	return nil
}
