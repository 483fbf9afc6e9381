// Command enumvalidator runs the enum literal check standalone:
//
//	go run ./tools/linters/enumvalidator/cmd ./...
package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"basegraph.app/trackersync/tools/linters/enumvalidator"
)

func main() {
	singlechecker.Main(enumvalidator.Analyzer)
}
