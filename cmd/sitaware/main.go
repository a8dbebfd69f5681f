// Command sitaware checks IoT actions against a reasoning oracle that knows
// the home's layout.
package main

import "github.com/ppiankov/sitaware/internal/cli"

func main() {
	cli.Execute()
}
