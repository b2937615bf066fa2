// The main package for the movie-harvester executable.
package main

import (
	"github.com/filmvault/movie-harvester/cmd"
)

func main() {
	cmd.Execute()
}
