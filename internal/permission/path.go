package permission

import (
	"fmt"
	"path/filepath"
	"strings"
)

// criticalFiles are never touched through the assistant.
var criticalFiles = map[string]bool{
	"/etc/passwd":           true,
	"/etc/shadow":           true,
	"/etc/sudoers":          true,
	"/boot/grub/grub.cfg":   true,
	"/etc/fstab":            true,
	"/etc/hosts":            true,
	"/etc/ssh/sshd_config":  true,
}

// protectedDirs hold system files; writes are blocked, reads prompt.
var protectedDirs = []string{
	"/etc", "/usr", "/var", "/boot", "/sys", "/proc",
	"/dev", "/bin", "/sbin", "/lib", "/lib64", "/opt",
}

// FileAccess distinguishes read from write/delete intent.
type FileAccess int

const (
	AccessRead FileAccess = iota
	AccessWrite
)

// ClassifyPath grades file access. The path resolves to absolute
// against workingDir before matching.
func ClassifyPath(path, workingDir string, access FileAccess) Assessment {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(workingDir, abs)
	}
	abs = filepath.Clean(abs)

	if criticalFiles[abs] {
		return Assessment{
			RiskLevel:   RiskCritical,
			Action:      ActionBlock,
			Reasons:     []string{fmt.Sprintf("%s is a critical system file", abs)},
			Suggestions: []string{"edit system files manually with appropriate privileges"},
		}
	}

	for _, dir := range protectedDirs {
		if abs == dir || strings.HasPrefix(abs, dir+string(filepath.Separator)) {
			if access == AccessWrite {
				return Assessment{
					RiskLevel: RiskHigh,
					Action:    ActionBlock,
					Reasons:   []string{fmt.Sprintf("writing under protected directory %s", dir)},
				}
			}
			return Assessment{
				RiskLevel: RiskMedium,
				Action:    ActionPrompt,
				Reasons:   []string{fmt.Sprintf("reading under protected directory %s", dir)},
			}
		}
	}

	if workingDir != "" {
		wd := filepath.Clean(workingDir)
		if abs != wd && !strings.HasPrefix(abs, wd+string(filepath.Separator)) {
			return Assessment{
				RiskLevel: RiskMedium,
				Action:    ActionPrompt,
				Reasons:   []string{fmt.Sprintf("%s is outside the working directory", abs)},
			}
		}
	}

	return Assessment{RiskLevel: RiskSafe, Action: ActionAllow}
}
