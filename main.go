package main

import "github.com/tldr-it-stepankutaj/brute/cmd/brute"

func main() {
	brute.Execute()
}
