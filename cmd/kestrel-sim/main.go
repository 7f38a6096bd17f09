// Command kestrel-sim boots the kernel core on a simulated machine.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
