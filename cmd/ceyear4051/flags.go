package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

var ErrNoCmd = fmt.Errorf("No CMD")

type Command struct {
	Str        string
	Aliases    []string
	Desc       string
	HandleFunc func(args []string) error
	Usage      string
	Options    map[string]string
	Example    string

	// Offline commands run without opening the instrument.
	Offline bool
}

func (cmd Command) PrintUsage() {
	fmt.Fprintf(os.Stderr, "%s - %s\n", cmd.Str, cmd.Desc)

	fmt.Fprintf(os.Stderr, "\nUsage:\n  %s %s\n", cmd.Str, strings.TrimSpace(cmd.Usage))

	if len(cmd.Options) > 0 {
		fmt.Fprint(os.Stderr, "\nOptions:\n")
		for f, desc := range cmd.Options {
			fmt.Fprintf(os.Stderr, "   %-17s %s\n", f, desc)
		}
	}

	if cmd.Example != "" {
		fmt.Fprintf(os.Stderr, "\nExample:\n  %s\n", strings.TrimSpace(cmd.Example))
	}

	fmt.Fprint(os.Stderr, "\n")
}

func parseFlags(args []string) (cmd Command, arguments []string) {
	var options []string
	var err error
	cmd, options, arguments, err = findCommand(commands, args)
	if err != nil {
		pflag.Usage()
		os.Exit(1)
	}

	optionsSet().Parse(options)

	if len(arguments) > 0 {
		switch arguments[0] {
		case "--help", "-help", "help", "-h":
			cmd.PrintUsage()
			os.Exit(1)
		}
	}

	return
}

// findCommand splits args (including the program name) into the global
// options before the command and the arguments after it.
func findCommand(cmds []Command, args []string) (cmd Command, pre, post []string, err error) {
	cmdMap := make(map[string]Command, len(cmds))
	for _, c := range cmds {
		cmdMap[c.Str] = c
		for _, alias := range c.Aliases {
			cmdMap[alias] = c
		}
	}

	for i, arg := range args {
		if i == 0 {
			continue
		}
		if cmd, ok := cmdMap[arg]; ok {
			return cmd, args[1:i], args[i+1:], nil
		}
	}
	err = ErrNoCmd
	return
}
