package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mattjoyce/uploader/internal/config"
	"github.com/mattjoyce/uploader/internal/doctor"
)

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "hash-update", "lock":
		if hasHelpFlag(actionArgs) {
			printConfigHashUpdateHelp()
			return 0
		}
		return runConfigHashUpdate(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		printConfigNounHelp(os.Stderr)
		return 1
	}
}

// runConfigCheck loads the file with full validation, then reports the
// doctor's findings. Exit status 1 means the file cannot be used.
func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output result as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *configPath == "" && fs.NArg() == 1 {
		*configPath = fs.Arg(0)
	}

	cfg := config.Defaults()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			if *jsonOut {
				res := &doctor.Result{Errors: []doctor.Issue{{Category: "syntax", Message: err.Error()}}}
				out, _ := doctor.FormatJSON(res)
				fmt.Println(out)
			} else {
				fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
			}
			return 1
		}
		cfg = loaded
	}

	result := doctor.New(cfg).Validate()

	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render result: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	return 0
}

// runConfigHashUpdate records the current file as trusted by writing its
// checksum beside it. Load refuses the file once it drifts.
func runConfigHashUpdate(args []string) int {
	fs := flag.NewFlagSet("hash-update", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *configPath == "" && fs.NArg() == 1 {
		*configPath = fs.Arg(0)
	}
	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: uploader config hash-update --config PATH")
		return 1
	}

	data, err := os.ReadFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
		return 1
	}
	if _, err := config.Parse(data); err != nil {
		fmt.Fprintf(os.Stderr, "Refusing to hash invalid config: %v\n", err)
		return 1
	}

	sum, err := config.WriteChecksum(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write checksum: %v\n", err)
		return 1
	}
	fmt.Printf("Updated %s%s\n", *configPath, config.ChecksumSuffix)
	fmt.Printf("blake3: %s\n", sum)
	return 0
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: uploader config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, hash-update")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: uploader config check [--config PATH] [--json]")
	fmt.Println("Validate the configuration and report settings that would misbehave at runtime.")
	fmt.Println("Without --config the built-in defaults are checked.")
}

func printConfigHashUpdateHelp() {
	fmt.Println("Usage: uploader config hash-update --config PATH")
	fmt.Println("Write PATH" + config.ChecksumSuffix + " so later loads detect edits to PATH.")
}
