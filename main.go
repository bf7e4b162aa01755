package main

import "github.com/Saaiiikrishna/msd-th-sub005/cmd"

func main() {
	cmd.Execute()
}
