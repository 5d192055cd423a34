package main

import "github.com/oshokin/pybi-publisher/cmd/pybi-spot-check/cmd"

func main() {
	cmd.Execute()
}
