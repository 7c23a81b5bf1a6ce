// Command spineweb fetches and watches entities of a backend from the
// command line.
package main

import "os"

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
