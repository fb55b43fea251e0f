// Command staffconsole is the entry point of the staff-management console.
// It dispatches to the console UI, the headless create command, and the
// local development identity service.
package main

import (
	"fmt"
	"os"

	"staffconsole/internal/cmd/console"
	"staffconsole/internal/cmd/create"
	"staffconsole/internal/cmd/devserver"
)

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// run parses argv and invokes the matching subcommand handler.
func run(argv []string) error {
	if len(argv) < 2 {
		return console.Run(nil)
	}

	switch argv[1] {
	case "console":
		return console.Run(argv[2:])
	case "create":
		return create.Run(argv[2:])
	case "dev-server":
		return devserver.Run(argv[2:])
	case "-h", "--help", "help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown subcommand: %s", argv[1])
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "staffconsole <console|create|dev-server> [flags]")
}
