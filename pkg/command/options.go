package command

import (
	"sort"
	"strconv"
	"strings"

	"hive/interp-go/pkg/runtime"
)

type optionSpec struct {
	name       string
	takesValue bool
}

type options struct {
	set    map[string]bool
	values map[string]string
}

func (o options) has(name string) bool { return o.set[name] }

func (o options) value(name string) (string, bool) {
	v, ok := o.values[name]
	return v, ok
}

// parseOptions consumes leading -options from args. Parsing stops at "--",
// at the first word not starting with "-", or at a lone "-". Unknown options
// are an error naming the accepted set.
func parseOptions(args []string, specs ...optionSpec) (options, []string, error) {
	opts := options{set: map[string]bool{}, values: map[string]string{}}
	i := 0
	for i < len(args) {
		arg := args[i]
		if arg == "--" {
			i++
			break
		}
		if len(arg) < 2 || arg[0] != '-' {
			break
		}
		spec, ok := findOption(specs, arg)
		if !ok {
			return options{}, nil, badOption(arg, specs)
		}
		opts.set[spec.name] = true
		if spec.takesValue {
			if i+1 >= len(args) {
				return options{}, nil, runtime.NewError(runtime.KindInvalidArgument, "value for %q missing", arg)
			}
			opts.values[spec.name] = args[i+1]
			i++
		}
		i++
	}
	return opts, args[i:], nil
}

func findOption(specs []optionSpec, name string) (optionSpec, bool) {
	for _, s := range specs {
		if s.name == name {
			return s, true
		}
	}
	return optionSpec{}, false
}

func badOption(arg string, specs []optionSpec) error {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.name
	}
	sort.Strings(names)
	return runtime.NewError(runtime.KindInvalidArgument, "bad option %q: must be %s", arg, oneOf(names))
}

// oneOf renders "a, b, or c".
func oneOf(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " or " + names[1]
	}
	return strings.Join(names[:len(names)-1], ", ") + ", or " + names[len(names)-1]
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, runtime.NewError(runtime.KindInvalidArgument, "expected boolean value but got %q", s)
}

func parseInt(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, runtime.NewError(runtime.KindInvalidArgument, "expected integer but got %q", s)
	}
	return v, nil
}

func parseUint64(s string) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, runtime.NewError(runtime.KindInvalidArgument, "expected unsigned integer but got %q", s)
	}
	return v, nil
}

func boolResult(b bool) runtime.Result {
	if b {
		return runtime.OK("1")
	}
	return runtime.OK("0")
}
