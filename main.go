package main

import "github.com/whiskertech/petfeeder/cmd"

func main() {
	cmd.Execute()
}
