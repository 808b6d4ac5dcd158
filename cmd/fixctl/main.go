// fixctl is a CLI client for the fixd control HTTP surface.
package main

import "github.com/fixdaemon/gofix/cmd/fixctl/commands"

func main() {
	commands.Execute()
}
