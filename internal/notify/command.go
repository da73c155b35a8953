package notify

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// commandWaitDelay caps how long output pipes held by a killed command's
// children can keep Notify waiting.
const commandWaitDelay = time.Second

// Command runs a shell command per notification. Placeholders in Template
// are replaced with shell-quoted values, so templates must not add their own
// quotes around them:
//
//	notify-send {{.From}} {{.Preview}}
type Command struct {
	Template string
}

// Notify implements Notifier.
func (c Command) Notify(ctx context.Context, n Notification) error {
	cmdStr := templateNotification(c.Template, n)
	cmd := exec.CommandContext(ctx, "sh", "-c", cmdStr)
	cmd.WaitDelay = commandWaitDelay
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("notify: command failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// templateNotification replaces placeholders in the command template with
// quoted notification values.
func templateNotification(command string, n Notification) string {
	r := strings.NewReplacer(
		"{{.From}}", shellQuote(n.Sender.Username),
		"{{.To}}", shellQuote(n.Recipient.Username),
		"{{.Email}}", shellQuote(n.Recipient.Email),
		"{{.Preview}}", shellQuote(n.Preview),
		"{{.MessageID}}", strconv.FormatUint(uint64(n.MessageID), 10),
	)
	return r.Replace(command)
}

// shellQuote wraps s in single quotes for sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
