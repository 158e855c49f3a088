// Package main is the entry point for the versus CLI, which serves the 1v1
// match overlay and computes player stats from the results sheet.
package main

import "github.com/pable/versus-overlay/cmd"

func main() {
	cmd.Execute()
}
