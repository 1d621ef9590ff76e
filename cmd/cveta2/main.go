// Command cveta2 exports, merges and converts CVAT annotation datasets.
package main

import (
	"os"

	"github.com/BuckanovNikita/cveta2/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
