package agent

import "strings"

// escapeReplacer rewrites literal escape sequences the agent sometimes
// emits as two characters instead of one.
var escapeReplacer = strings.NewReplacer(
	`\n`, "\n",
	`\t`, "\t",
	`\r`, "",
)

// Sanitize normalizes agent reply text for delivery: literal \n, \t and \r
// sequences become real characters, and surrounding whitespace is dropped.
func Sanitize(text string) string {
	return strings.TrimSpace(escapeReplacer.Replace(text))
}
