// Command castmix assembles podcast episodes from a raw take, its word
// timeline and a show template.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "castmix:", err)
		}
		os.Exit(1)
	}
}
