package main

import "github.com/MeKo-Tech/platex/cmd/platex/cmd"

func main() {
	cmd.Execute()
}
