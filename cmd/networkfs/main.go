// networkfs mounts a remote directory service as a filesystem and offers
// one-shot commands against it.
//
//	networkfs mount <mountpoint>   Mount the filesystem
//	networkfs ls [path]            List a directory
//	networkfs stat <path>          Show an entry
//	networkfs touch|mkdir <path>   Create a file or directory
//	networkfs rm|rmdir <path>      Remove a file or directory
//	networkfs login|logout         Save or delete the mount credential
//	networkfs config show          Print the effective configuration
package main

import (
	"os"

	"github.com/fruitsalade/networkfs/cmd/networkfs/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		commands.PrintErr("Error: %v", err)
		os.Exit(1)
	}
}
