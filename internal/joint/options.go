package joint

import "fmt"

// dependentOptions declares cross-field configuration constraints: when the
// named option is set, the option it requires must be non-empty too.
var dependentOptions = []struct {
	option   string
	requires string
	check    func(Config) bool
}{
	{
		option:   "RelatedListName",
		requires: "RelatedListFields",
		check: func(c Config) bool {
			return c.RelatedListName == "" || len(c.RelatedListFields) > 0
		},
	},
}

// validateOptions enforces dependent-option constraints before a joint is
// constructed, so misconfiguration fails fast with a descriptive error.
func validateOptions(c Config) error {
	for _, rule := range dependentOptions {
		if !rule.check(c) {
			return fmt.Errorf("%w: %s requires %s", ErrInvalidConfig, rule.option, rule.requires)
		}
	}
	return nil
}
