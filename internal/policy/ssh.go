// Package policy implements the closed-set safety filters applied to every
// dispatchable action before it is sent to the runner: the ssh read-only
// command allowlist and the web_fetch SSRF-safety check.
package policy

import (
	"fmt"
	"regexp"
)

// metacharRe matches any shell metacharacter forbidden in an ssh command,
// regardless of whether the command text otherwise matches an allowed
// pattern. This check runs first and short-circuits: a command containing
// one of these characters is blocked even if it happens to also match one
// of the read-only patterns below.
var metacharRe = regexp.MustCompile("[;&|`$<>{}\\\\]")

// sshCommandPatterns is the closed set of read-only commands the ssh action
// may run. Every entry is anchored at both ends so a disallowed suffix
// (e.g. "uptime; rm -rf /") cannot sneak past a prefix match — though the
// metacharacter check above would already have caught that particular
// example.
var sshCommandPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^uptime$`),
	regexp.MustCompile(`^whoami$`),
	regexp.MustCompile(`^id$`),
	regexp.MustCompile(`^hostname$`),
	regexp.MustCompile(`^date$`),
	regexp.MustCompile(`^ping -c \d+ [a-zA-Z0-9.\-]+$`),
	regexp.MustCompile(`^ls (-[a-zA-Z]+ )?/[a-zA-Z0-9._/\-]*$`),
	regexp.MustCompile(`^uname(\s-[a-zA-Z]+)?$`),
	regexp.MustCompile(`^free(\s-[a-zA-Z]+)?$`),
	regexp.MustCompile(`^df(\s-[a-zA-Z]+)?$`),
	regexp.MustCompile(`^docker ps$`),
	regexp.MustCompile(`^docker stats --no-stream$`),
	regexp.MustCompile(`^systemctl status [a-zA-Z0-9@_.\-]+$`),
	regexp.MustCompile(`^journalctl -u [a-zA-Z0-9@_.\-]+$`),
}

// CheckSSHCommand reports whether command is allowed to run unattended. A
// non-nil error is the human-readable blocked-result cause; it is never a
// dispatch failure, only a policy verdict.
func CheckSSHCommand(command string) error {
	if metacharRe.MatchString(command) {
		return fmt.Errorf("command contains a disallowed metacharacter")
	}
	for _, re := range sshCommandPatterns {
		if re.MatchString(command) {
			return nil
		}
	}
	return fmt.Errorf("command does not match any allowed read-only pattern")
}
