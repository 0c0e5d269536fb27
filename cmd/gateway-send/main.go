// ABOUTME: Lightweight CLI client posting messages to a running gateway
// ABOUTME: Sends one message per invocation and prints the reply

package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

type sendPayload struct {
	User string `json:"user"`
	Text string `json:"text"`
}

type reply struct {
	Text      string `json:"text"`
	RequestID string `json:"request_id"`
}

type errReply struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after_seconds"`
}

func main() {
	server := flag.String("server", "http://localhost:8080", "Gateway server URL")
	user := flag.String("user", "cli-user", "User identifier to send as")
	timeout := flag.Duration("timeout", 60*time.Second, "Request timeout")
	flag.Parse()

	text := strings.Join(flag.Args(), " ")
	if strings.TrimSpace(text) == "" {
		fmt.Fprintln(os.Stderr, "usage: gateway-send [flags] <message>")
		os.Exit(2)
	}

	if err := send(*server, *user, text, *timeout); err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
}

func send(server, user, text string, timeout time.Duration) error {
	body, err := json.Marshal(sendPayload{User: user, Text: text})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(server, "/")+"/api/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gateway-Source", "cli")

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		var e errReply
		if json.Unmarshal(raw, &e) == nil && e.Code != "" {
			if e.RetryAfter > 0 {
				return fmt.Errorf("%s: %s (retry in %ds)", e.Code, e.Message, e.RetryAfter)
			}
			return fmt.Errorf("%s: %s", e.Code, e.Message)
		}
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var r reply
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("decoding reply: %w", err)
	}

	color.Cyan(r.Text)
	return nil
}
