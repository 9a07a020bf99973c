// Package main provides a CI-friendly WebSocket smoke test for the Frost
// gateway.
//
// It validates:
//   - handshake + subprotocol selection
//   - participant registration on first contact (/start)
//   - command replies (/help, /profile)
//   - the create/join room round trip across two connections
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const (
	defaultSubprotocol = "frost.bot.v1"
	maxReadBytes       = 1 << 20 // 1MiB
)

type outbound struct {
	Text string    `json:"text"`
	TS   time.Time `json:"ts"`
}

type inbound struct {
	Text string `json:"text"`
}

type smokeClient struct {
	name string
	conn *websocket.Conn

	inbox chan outbound
	errCh chan error
}

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}

	root := context.Background()
	uid := time.Now().UnixNano() % 1_000_000_000

	a := mustConnect(root, "A", *wsURL, *origin, uid, "Smoke", *timeout)
	defer closeWS(a.conn)

	b := mustConnect(root, "B", *wsURL, *origin, uid+1, "Buddy", *timeout)
	defer closeWS(b.conn)

	welcome := a.mustAsk(root, "/start", *timeout)
	if !strings.Contains(welcome, "Smoke") {
		fatalf("welcome does not address the participant: %q", welcome)
	}
	if *verbose {
		fmt.Printf("welcome: %q\n", welcome)
	}

	help := a.mustAsk(root, "/help", *timeout)
	if !strings.Contains(help, "/create_room") {
		fatalf("help missing commands: %q", help)
	}

	created := a.mustAsk(root, "/create_room Smoke Test Room", *timeout)
	code := extractInviteCode(created)
	if code == "" {
		fatalf("create reply missing invite code: %q", created)
	}

	joined := b.mustAsk(root, "/join "+code, *timeout)
	if !strings.Contains(joined, "You joined") {
		fatalf("join failed: %q", joined)
	}

	profile := b.mustAsk(root, "/profile", *timeout)
	if !strings.Contains(profile, "Buddy") {
		fatalf("profile mismatch: %q", profile)
	}

	fmt.Printf("OK: uid_a=%d uid_b=%d invite_code=%s\n", uid, uid+1, code)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func mustConnect(parent context.Context, name, wsURL, origin string, uid int64, firstName string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	u, err := url.Parse(wsURL)
	if err != nil {
		fatalf("parse url: %v", err)
	}
	q := u.Query()
	q.Set("uid", fmt.Sprint(uid))
	q.Set("first_name", firstName)
	u.RawQuery = q.Encode()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}
	opts := &websocket.DialOptions{
		Subprotocols: []string{defaultSubprotocol},
		HTTPHeader:   h,
	}

	conn, resp, err := websocket.Dial(ctx, u.String(), opts)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", name, err)
	}
	if got := conn.Subprotocol(); got != defaultSubprotocol {
		fatalf("subprotocol mismatch (%s): got=%q want=%q", name, got, defaultSubprotocol)
	}

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan outbound, 64),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			_, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			var msg outbound
			if err := json.Unmarshal(data, &msg); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}

			select {
			case c.inbox <- msg:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

// mustAsk sends one command and waits for the next reply.
func (c *smokeClient) mustAsk(parent context.Context, text string, stepTimeout time.Duration) string {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	payload, err := json.Marshal(inbound{Text: text})
	if err != nil {
		fatalf("marshal (%s): %v", c.name, err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		fatalf("write %q (%s): %v", text, c.name, err)
	}

	select {
	case <-ctx.Done():
		fatalf("timeout waiting for reply to %q (%s)", text, c.name)
	case err := <-c.errCh:
		fatalf("connection error while waiting for reply to %q (%s): %v", text, c.name, err)
	case msg, ok := <-c.inbox:
		if !ok {
			fatalf("connection closed while waiting for reply to %q (%s)", text, c.name)
		}
		return msg.Text
	}
	return ""
}

func extractInviteCode(reply string) string {
	const marker = "Invite code: "
	i := strings.Index(reply, marker)
	if i < 0 {
		return ""
	}
	rest := reply[i+len(marker):]
	if j := strings.IndexAny(rest, " \n"); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest)
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
