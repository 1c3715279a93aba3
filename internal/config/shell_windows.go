//go:build windows

package config

// defaultShell is the shell used for run steps when none is configured.
// Invoked as `powershell -c <script>`, matching hosted Windows runners.
const defaultShell = "powershell"
