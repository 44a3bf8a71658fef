package shared

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// OpenBrowser opens url in the user's browser for the OAuth authorization step.
//
// $BROWSER wins when set (the first entry of a colon-separated list); otherwise the platform opener is used.
func OpenBrowser(url string) error {
	name, args, err := browserCommand(runtime.GOOS, os.Getenv("BROWSER"), url)
	if err != nil {
		return err
	}
	if err := exec.Command(name, args...).Start(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNoBrowser, name, err)
	}
	return nil
}

func browserCommand(goos, browserEnv, url string) (string, []string, error) {
	if first, _, _ := strings.Cut(browserEnv, ":"); strings.TrimSpace(first) != "" {
		fields := strings.Fields(first)
		return fields[0], append(fields[1:], url), nil
	}

	switch goos {
	case "darwin":
		return "open", []string{url}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{url}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}, nil
	default:
		return "", nil, fmt.Errorf("%w: unsupported platform %s", ErrNoBrowser, goos)
	}
}
