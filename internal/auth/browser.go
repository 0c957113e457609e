package auth

import (
	"fmt"
	"os/exec"
	"runtime"
)

// openBrowser opens url with the platform's URL launcher.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		tool, err := exec.LookPath("xdg-open")
		if err != nil {
			return fmt.Errorf("no URL launcher found: %w", err)
		}
		cmd = exec.Command(tool, url)
	}
	return cmd.Start()
}
