package main

import "github.com/oshokin/perimeter-alarm/cmd/perimeter-controller/cmd"

func main() {
	cmd.Execute()
}
