// Package flagx holds helpers for pre-scanning command-line arguments
// before the full flag set of a command is parsed.
package flagx

import (
	"io"
	"strings"

	"github.com/spf13/pflag"
)

// FilterArgs keeps only the flags named in allowedFlags, with their values.
// A value is taken either from "--name=value" or from the next argument when
// that does not start with "-". Scanning stops at "--".
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		// everything after "--" is positional
		if arg == "--" {
			break
		}

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name := strings.SplitN(arg, "=", 2)[0]
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}

	return filtered
}

// ConfigFileFlag extracts the config file path given with -c or
// --config-file. Other arguments are ignored, so this can run before the
// command's own flags are known. An empty string means no file was given.
func ConfigFileFlag(args []string) (string, error) {
	var path string

	filtered := FilterArgs(args, []string{"-c", "--config-file"})

	fs := pflag.NewFlagSet("config-file", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVarP(&path, "config-file", "c", "", "Path to config file")
	if err := fs.Parse(filtered); err != nil {
		return "", err
	}

	return path, nil
}
