package main

import "github.com/oshokin/perimeter-alarm/cmd/perimeter-ctl/cmd"

func main() {
	cmd.Execute()
}
