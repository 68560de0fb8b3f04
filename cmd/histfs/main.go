// Command histfs reconstructs a plausible history of create, delete and
// rename actions for an ext2/3/4 filesystem image by salvaging ghost
// directory entries left behind in slack space.
package main

import (
	"os"

	"github.com/baharrsalmann/filesystem-recovery/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
