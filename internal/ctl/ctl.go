package ctl

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"ipcollector/internal/app/version"
	"ipcollector/internal/auth"
	"ipcollector/internal/editor"
)

const usage = `usage: ipcollectorctl <command> [arguments]

patterns list                 print the saved patterns, one per line
patterns validate <pattern>   check that a pattern compiles
patterns add <pattern>        append a pattern and save
patterns save [-file path]    replace all patterns (reads stdin by default)
records list [-json]          print collected IPs, newest first
records delete <ip>           remove one IP
records clear -yes            remove every IP
records copy [-print]         copy IPs as CIDRs to the clipboard
token [-subject s] [-ttl d]   issue an API token
version                       print build information
`

// Env holds everything a command touches.
type Env struct {
	Editor    *editor.Editor
	Auth      *auth.Authenticator
	Clipboard editor.Clipboard
	Stdin     io.Reader
	Stdout    io.Writer
	Stderr    io.Writer
}

var errUsage = errors.New("invalid usage")

// Run executes one command and returns the process exit code.
func Run(ctx context.Context, args []string, env Env) int {
	if env.Stdout == nil {
		env.Stdout = os.Stdout
	}
	if env.Stderr == nil {
		env.Stderr = os.Stderr
	}
	if env.Stdin == nil {
		env.Stdin = os.Stdin
	}

	err := dispatch(ctx, args, env)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp):
		fmt.Fprint(env.Stderr, usage)
		return 2
	default:
		fmt.Fprintln(env.Stderr, "error:", err)
		return 1
	}
}

func dispatch(ctx context.Context, args []string, env Env) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "patterns":
		return patternsCommand(ctx, args[1:], env)
	case "records":
		return recordsCommand(ctx, args[1:], env)
	case "token":
		return tokenCommand(args[1:], env)
	case "version":
		info := version.Get()
		fmt.Fprintf(env.Stdout, "%s (built %s)\n", info.BuildVersion, info.BuiltAt)
		return nil
	default:
		return errUsage
	}
}

func patternsCommand(ctx context.Context, args []string, env Env) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "list":
		text, err := env.Editor.Patterns(ctx)
		if err != nil {
			return err
		}
		if text != "" {
			fmt.Fprintln(env.Stdout, text)
		}
		return nil

	case "validate":
		if len(args) != 2 {
			return errUsage
		}
		if err := editor.ValidatePattern(args[1]); err != nil {
			return err
		}
		fmt.Fprintln(env.Stdout, "valid")
		return nil

	case "add":
		if len(args) != 2 {
			return errUsage
		}
		current, err := env.Editor.Patterns(ctx)
		if err != nil {
			return err
		}
		text, err := editor.AddPattern(current, args[1])
		if err != nil {
			return err
		}
		saved, err := env.Editor.SavePatterns(ctx, text)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Stdout, "saved %d patterns\n", len(saved))
		return nil

	case "save":
		fs := newFlagSet("patterns save", env)
		file := fs.String("file", "", "read patterns from this file instead of stdin")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}

		text, err := readInput(*file, env.Stdin)
		if err != nil {
			return err
		}
		saved, err := env.Editor.SavePatterns(ctx, text)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Stdout, "saved %d patterns\n", len(saved))
		return nil

	default:
		return errUsage
	}
}

func recordsCommand(ctx context.Context, args []string, env Env) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "list":
		fs := newFlagSet("records list", env)
		asJSON := fs.Bool("json", false, "print JSON")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}

		views, err := env.Editor.Records(ctx)
		if err != nil {
			return err
		}
		if *asJSON {
			enc := json.NewEncoder(env.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(views)
		}
		for _, view := range views {
			line := view.String()
			if view.Country != "" && view.Country != "N/A" {
				line += " [" + view.Country + "]"
			}
			fmt.Fprintln(env.Stdout, line)
		}
		return nil

	case "delete":
		if len(args) != 2 {
			return errUsage
		}
		return env.Editor.DeleteRecord(ctx, args[1])

	case "clear":
		fs := newFlagSet("records clear", env)
		yes := fs.Bool("yes", false, "confirm removal of every collected IP")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if err := env.Editor.ClearRecords(ctx, *yes); err != nil {
			if errors.Is(err, editor.ErrNotConfirmed) {
				return errors.New("refusing to clear all IPs without -yes")
			}
			return err
		}
		fmt.Fprintln(env.Stdout, "all IPs cleared")
		return nil

	case "copy":
		fs := newFlagSet("records copy", env)
		printOnly := fs.Bool("print", false, "print instead of using the clipboard")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}

		clip := env.Clipboard
		if *printOnly {
			clip = nil
		}
		text, err := env.Editor.CopyCIDRs(ctx, clip)
		if err != nil {
			return err
		}
		if text == "" {
			fmt.Fprintln(env.Stderr, "no IPs collected")
			return nil
		}
		if clip == nil {
			fmt.Fprintln(env.Stdout, text)
		} else {
			fmt.Fprintln(env.Stdout, "Copied IPs with CIDR to clipboard")
		}
		return nil

	default:
		return errUsage
	}
}

func tokenCommand(args []string, env Env) error {
	fs := newFlagSet("token", env)
	subject := fs.String("subject", "ipcollectorctl", "token subject")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime, 0 for none")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !env.Auth.Enabled() {
		return fmt.Errorf("%s is not set", auth.SecretEnv)
	}
	token, err := env.Auth.GenerateJWT(*subject, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(env.Stdout, token)
	return nil
}

func newFlagSet(name string, env Env) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	return fs
}

func readInput(path string, stdin io.Reader) (string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}
