package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"golang.org/x/sys/unix"

	"transientbot/internal/config"
)

const remoteTimeout = 10 * time.Second

// CheckSlack verifies the bot token with auth.test.
func CheckSlack(ctx context.Context, cfg config.Slack) Result {
	const name = "Slack"

	if strings.TrimSpace(cfg.BotToken) == "" {
		return Result{Name: name, Detail: "bot token missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()

	opts := []slack.Option{slack.OptionHTTPClient(&http.Client{Timeout: remoteTimeout})}
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	resp, err := slack.New(cfg.BotToken, opts...).AuthTestContext(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: summarizeError("auth.test", err)}
	}
	detail := "authenticated"
	if resp.User != "" {
		detail = fmt.Sprintf("authenticated as %s", resp.User)
	}
	if resp.Team != "" {
		detail += " in " + resp.Team
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckCASDA verifies the CASDA credentials against the login endpoint.
func CheckCASDA(ctx context.Context, cfg config.CASDA) Result {
	const name = "CASDA"

	loginURL := strings.TrimSpace(cfg.LoginURL)
	if loginURL == "" {
		return Result{Name: name, Detail: "missing login url"}
	}
	if strings.TrimSpace(cfg.Username) == "" {
		return Result{Name: name, Detail: "missing username"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, loginURL, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("auth check failed (%v)", err)}
	}
	req.SetBasicAuth(cfg.Username, cfg.Password)

	resp, err := (&http.Client{Timeout: remoteTimeout}).Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeError("login", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		return Result{Name: name, Passed: true, Detail: "credentials accepted"}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (check CASDA_USERNAME/CASDA_PASSWORD)"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("auth check failed (%d)", resp.StatusCode)}
	}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckReadableFile verifies that path is a regular file the process can read.
func CheckReadableFile(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d bytes)", path, info.Size())}
}

func summarizeError(op string, err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return op + " timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return op + " timed out (service unreachable)"
	}
	return fmt.Sprintf("%s failed (%v)", op, err)
}
