package permission

import (
	"fmt"
	"regexp"
	"strings"
)

// commandRule is one classification pattern. Rules within a tier share
// the tier's risk level and action.
type commandRule struct {
	pattern *regexp.Regexp
	reason  string
}

var criticalCommandRules = []commandRule{
	{regexp.MustCompile(`\brm\s+(-[a-zA-Z]*r[a-zA-Z]*f[a-zA-Z]*|-[a-zA-Z]*f[a-zA-Z]*r[a-zA-Z]*)\s+/\s*$`), "recursive force-delete of the filesystem root"},
	{regexp.MustCompile(`\brm\s+(-[a-zA-Z]*r[a-zA-Z]*f[a-zA-Z]*|-[a-zA-Z]*f[a-zA-Z]*r[a-zA-Z]*)\s+/(\s|$)`), "recursive force-delete of the filesystem root"},
	{regexp.MustCompile(`\bdd\s+.*\bof=/dev/(sd|hd|nvme|vd)`), "raw write to a block device"},
	{regexp.MustCompile(`\bmkfs(\.[a-z0-9]+)?\b`), "filesystem format destroys all data on the target"},
	{regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`), "fork bomb"},
}

var highCommandRules = []commandRule{
	{regexp.MustCompile(`^\s*sudo\b|\|\s*sudo\b|;\s*sudo\b|&&\s*sudo\b`), "privilege escalation with sudo"},
	{regexp.MustCompile(`^\s*su\b|\bsu\s+-`), "switching user identity"},
	{regexp.MustCompile(`\bchmod\s+(-[a-zA-Z]+\s+)*777\b`), "world-writable permissions"},
	{regexp.MustCompile(`\bchown\b`), "changing file ownership"},
	{regexp.MustCompile(`\brm\s+-[a-zA-Z]*r[a-zA-Z]*f|\brm\s+-[a-zA-Z]*f[a-zA-Z]*r`), "recursive force-delete"},
	{regexp.MustCompile(`>\s*/dev/(sd|hd|nvme|vd)`), "redirect into a block device"},
	{regexp.MustCompile(`\b(killall|pkill)\b`), "killing processes by name"},
	{regexp.MustCompile(`\bcrontab\s+(-[a-zA-Z]+\s+)*(-e|-r)\b`), "editing scheduled jobs"},
}

var mediumCommandRules = []commandRule{
	{regexp.MustCompile(`\brm\s+[^|;&]*[*?\[]`), "delete with shell wildcards"},
	{regexp.MustCompile(`\bcp\s+-[a-zA-Z]*r`), "recursive copy"},
	{regexp.MustCompile(`\bfind\b.*-delete\b`), "find with -delete"},
	{regexp.MustCompile(`>\s*/etc/|\b(cp|mv|tee)\s+[^|;&]*\s/etc/`), "writing under /etc"},
	{regexp.MustCompile(`\bgit\s+(reset\s+--hard|checkout\s+--\s|clean\s+-[a-zA-Z]*f)`), "discarding working-tree changes"},
}

// safeCommands are read-only commands allowed without a prompt.
var safeCommands = map[string]bool{
	"ls": true, "cat": true, "head": true, "tail": true, "grep": true,
	"pwd": true, "whoami": true, "date": true, "echo": true,
	"which": true, "type": true,
}

var safeGitSubcommands = map[string]bool{
	"status": true, "log": true, "diff": true,
}

var networkCommandRe = regexp.MustCompile(`(^|[|;&]\s*)(curl|wget|ssh|scp|ftp|telnet|nc)\b`)

var fileWriteCommandRe = regexp.MustCompile(`(>>?)|(^|[|;&]\s*)(cp|mv|touch|mkdir)\b`)

// ClassifyCommand grades a shell command line. Tiers match in fixed
// order and the first hit wins; an unmatched command falls through to
// a low-risk allow.
func ClassifyCommand(command string) Assessment {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return Assessment{RiskLevel: RiskSafe, Action: ActionAllow}
	}

	for _, rule := range criticalCommandRules {
		if rule.pattern.MatchString(trimmed) {
			return Assessment{
				RiskLevel:   RiskCritical,
				Action:      ActionBlock,
				Reasons:     []string{rule.reason},
				Suggestions: []string{"this command is blocked; run it manually outside the assistant if you are sure"},
			}
		}
	}

	for _, rule := range highCommandRules {
		if rule.pattern.MatchString(trimmed) {
			return Assessment{
				RiskLevel: RiskHigh,
				Action:    ActionPrompt,
				Reasons:   []string{rule.reason},
				Warnings:  []string{"this command can damage the system or other users' files"},
			}
		}
	}

	for _, rule := range mediumCommandRules {
		if rule.pattern.MatchString(trimmed) {
			return Assessment{
				RiskLevel: RiskMedium,
				Action:    ActionPrompt,
				Reasons:   []string{rule.reason},
			}
		}
	}

	if isSafeCommand(trimmed) {
		return Assessment{RiskLevel: RiskSafe, Action: ActionAllow}
	}

	if networkCommandRe.MatchString(trimmed) {
		return Assessment{
			RiskLevel: RiskMedium,
			Action:    ActionPrompt,
			Reasons:   []string{"command reaches the network"},
		}
	}

	if fileWriteCommandRe.MatchString(trimmed) {
		return Assessment{
			RiskLevel: RiskLow,
			Action:    ActionPrompt,
			Reasons:   []string{"command writes to the filesystem"},
		}
	}

	return Assessment{
		RiskLevel: RiskLow,
		Action:    ActionAllow,
		Reasons:   []string{fmt.Sprintf("no known risk pattern in %q", firstWord(trimmed))},
	}
}

// isSafeCommand reports whether the whole pipeline consists of
// allowlisted read-only commands.
func isSafeCommand(command string) bool {
	for _, segment := range strings.FieldsFunc(command, func(r rune) bool {
		return r == '|' || r == ';' || r == '&'
	}) {
		fields := strings.Fields(segment)
		if len(fields) == 0 {
			continue
		}
		name := fields[0]
		if name == "git" {
			if len(fields) < 2 || !safeGitSubcommands[fields[1]] {
				return false
			}
			continue
		}
		if !safeCommands[name] {
			return false
		}
	}
	return true
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
