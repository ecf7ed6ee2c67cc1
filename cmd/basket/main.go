// Command basket runs the shared shopping list.
package main

import "github.com/mesh-intelligence/basket/internal/cli"

func main() {
	cli.Execute()
}
