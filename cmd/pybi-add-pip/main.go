package main

import "github.com/oshokin/pybi-publisher/cmd/pybi-add-pip/cmd"

func main() {
	cmd.Execute()
}
