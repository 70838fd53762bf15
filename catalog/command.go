package catalog

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"
)

// FilePlaceholder is replaced by the source file name in templates
const FilePlaceholder = "{file}"

// Command is a command template split into argument tokens
type Command struct {
	raw    string
	tokens []string
}

// ParseCommand splits a template into tokens, honouring shell-style quoting
func ParseCommand(template string) (Command, error) {
	tokens, err := shlex.Split(template)
	if err != nil {
		return Command{}, fmt.Errorf("parse command template %q: %w", template, err)
	}
	return Command{raw: template, tokens: tokens}, nil
}

// MustParseCommand is ParseCommand that panics on error, for static templates
func MustParseCommand(template string) Command {
	cmd, err := ParseCommand(template)
	if err != nil {
		panic(err)
	}
	return cmd
}

// Args returns the argument vector with the placeholder substituted in every
// token. The file name always stays inside the token it was substituted into.
func (c Command) Args(file string) []string {
	args := make([]string, len(c.tokens))
	for i, token := range c.tokens {
		args[i] = strings.ReplaceAll(token, FilePlaceholder, file)
	}
	return args
}

// Empty reports whether the template has no tokens
func (c Command) Empty() bool {
	return len(c.tokens) == 0
}

func (c Command) String() string {
	return c.raw
}

// UnmarshalYAML parses the command from a YAML string
func (c *Command) UnmarshalYAML(value *yaml.Node) error {
	var template string
	if err := value.Decode(&template); err != nil {
		return err
	}
	parsed, err := ParseCommand(template)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
