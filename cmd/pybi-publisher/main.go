package main

import "github.com/oshokin/pybi-publisher/cmd/pybi-publisher/cmd"

func main() {
	cmd.Execute()
}
