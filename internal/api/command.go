package api

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Command is the definition of metadata for an administrative command.
type Command struct {
	ID      int
	User    string
	Content string
}

// NewCommand creates a new command for the given user.
func NewCommand(id int, user string, content ...string) Command {
	return Command{
		ID:      id,
		User:    user,
		Content: strings.Join(content, " "),
	}
}

// Validator is a validation function that checks the string for the given type.
type Validator func(string) error

// Validate validates the command with the given arguments.
func (c Command) Validate(user map[string]struct{}, exe map[string]struct{}, args ...Validator) error {
	if _, ok := user[c.User]; !ok && len(user) > 0 {
		return fmt.Errorf("command cannot be executed by: %s", c.User)
	}
	cmd := strings.Split(c.Content, " ")
	if len(cmd) == 0 {
		return fmt.Errorf("cannot parse empty command: %s", c.Content)
	}
	exec := cmd[0]
	if _, ok := exe[exec]; !ok && len(exe) > 0 {
		return fmt.Errorf("unknown command: %s", exec)
	}

	options := cmd[1:]
	if len(options) < len(args) {
		return fmt.Errorf("missing arguments for '%s': got %d, need %d", exec, len(options), len(args))
	}

	for i, arg := range args {
		err := arg(options[i])
		if err != nil {
			return fmt.Errorf("error for argument '%s' at %d: %w", options[i], i, err)
		}
	}
	return nil
}

// AnyUser is a predefined validator for any user.
func AnyUser() map[string]struct{} {
	return map[string]struct{}{}
}

// Contains is a predefined validator for the argument being one of the given values.
func Contains(arg ...string) map[string]struct{} {
	args := make(map[string]struct{})
	for _, a := range arg {
		args[a] = struct{}{}
	}
	return args
}

// NotEmpty is a predefined Validator that checks if the argument is empty.
func NotEmpty(s string) error {
	if s == "" {
		return fmt.Errorf("cannot be empty")
	}
	return nil
}

// OneOf is a predefined Validator checking that the value is one of the provided arguments.
// it passes the reference to the value to the given argument.
func OneOf(v *string, args ...string) Validator {
	return func(s string) error {
		var isOneOf bool
		for _, arg := range args {
			if arg == s {
				isOneOf = true
			}
		}
		if !isOneOf {
			return fmt.Errorf("must be one of %v", args)
		}
		*v = s
		return nil
	}
}

// Amount is a predefined Validator checking that the argument is a positive decimal.
// it passes the reference to the value to the given argument.
func Amount(d *decimal.Decimal) Validator {
	return func(s string) error {
		v, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("not a decimal amount: %w", err)
		}
		if !v.IsPositive() {
			return fmt.Errorf("must be positive: %s", s)
		}
		*d = v
		return nil
	}
}
