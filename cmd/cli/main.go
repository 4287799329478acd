// Command heapscan finds memory overhead anti-patterns in Java heap
// snapshots.
package main

import "github.com/heapscan/cmd/cli/cmd"

func main() {
	cmd.Execute()
}
