// cmd/tools/registry-export/main.go
//
// Writes the built-in task registry to a JSON file so BPMN modelers and the
// process deployment pipeline can see which task types this service handles.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Awign-PM-Prod/securepath-pro-sub002/pkg/registry"
)

func main() {
	out := flag.String("out", "configs/task-registry.json", "Path to write the registry file")
	flag.Parse()

	reg := registry.Builtin()
	if err := reg.Save(*out); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write registry: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d tasks to %s\n", len(reg.Tasks), *out)
}
