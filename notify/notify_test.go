package notify

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeSMTP struct {
	ln   net.Listener
	mu   sync.Mutex
	rcpt []string
	data string
	done chan struct{}
}

func newFakeSMTP(t *testing.T) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeSMTP{ln: ln, done: make(chan struct{})}
	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *fakeSMTP) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeSMTP) serve() {
	defer close(s.done)
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	reply := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }
	reply("220 fake ready")

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250 fake")
		case strings.HasPrefix(cmd, "MAIL FROM"):
			reply("250 ok")
		case strings.HasPrefix(cmd, "RCPT TO"):
			s.mu.Lock()
			s.rcpt = append(s.rcpt, strings.TrimSpace(line))
			s.mu.Unlock()
			reply("250 ok")
		case cmd == "DATA":
			reply("354 go ahead")
			var body strings.Builder
			for {
				dl, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if dl == ".\r\n" {
					break
				}
				body.WriteString(dl)
			}
			s.mu.Lock()
			s.data = body.String()
			s.mu.Unlock()
			reply("250 queued")
		case cmd == "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 unsupported")
		}
	}
}

func TestSMTPNotifierDeliversMessage(t *testing.T) {
	server := newFakeSMTP(t)
	n, err := NewSMTPNotifier(SMTPConfig{
		Host:     "127.0.0.1",
		Port:     server.port(),
		From:     "noreply@otpgate.test",
		FromName: "OTP Gate",
		Timeout:  2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewSMTPNotifier: %v", err)
	}

	if err := n.Send(context.Background(), "ann@example.com", "Your OTP Code", "Your OTP code is 123456. It expires in 5 minutes."); err != nil {
		t.Fatalf("Send: %v", err)
	}
	<-server.done

	server.mu.Lock()
	defer server.mu.Unlock()
	if len(server.rcpt) != 1 || !strings.Contains(server.rcpt[0], "ann@example.com") {
		t.Fatalf("unexpected recipients: %v", server.rcpt)
	}
	for _, want := range []string{"Subject: Your OTP Code", "To: ann@example.com", "123456", `"OTP Gate" <noreply@otpgate.test>`} {
		if !strings.Contains(server.data, want) {
			t.Fatalf("message missing %q:\n%s", want, server.data)
		}
	}
}

func TestSMTPNotifierDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	n, err := NewSMTPNotifier(SMTPConfig{Host: "127.0.0.1", Port: port, From: "noreply@otpgate.test", Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewSMTPNotifier: %v", err)
	}
	if err := n.Send(context.Background(), "ann@example.com", "s", "b"); err == nil {
		t.Fatal("expected dial failure")
	}
}

func TestSMTPNotifierRejectsHeaderInjection(t *testing.T) {
	n, err := NewSMTPNotifier(SMTPConfig{Host: "127.0.0.1", Port: 2525, From: "noreply@otpgate.test"})
	if err != nil {
		t.Fatalf("NewSMTPNotifier: %v", err)
	}
	if err := n.Send(context.Background(), "ann@example.com\r\nBcc: x@y.z", "s", "b"); err == nil {
		t.Fatal("expected header injection to be rejected")
	}
}

func TestNewSMTPNotifierValidation(t *testing.T) {
	if _, err := NewSMTPNotifier(SMTPConfig{}); err == nil {
		t.Fatal("expected missing host to fail")
	}
	if _, err := NewSMTPNotifier(SMTPConfig{Host: "mail", From: "not an address"}); err == nil {
		t.Fatal("expected invalid from to fail")
	}
	n, err := NewSMTPNotifier(SMTPConfig{Host: "mail", Username: "user@mail.test"})
	if err != nil {
		t.Fatalf("expected username fallback for from: %v", err)
	}
	if n.addr != net.JoinHostPort("mail", strconv.Itoa(587)) {
		t.Fatalf("expected default port 587, got %s", n.addr)
	}
}

func TestLogNotifierWritesRecord(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	n := NewLogNotifier(logger)

	if err := n.Send(context.Background(), "ann@example.com", "Your OTP Code", "Your OTP code is 654321."); err != nil {
		t.Fatalf("Send: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"to":"ann@example.com"`) || !strings.Contains(out, "654321") {
		t.Fatalf("unexpected log output: %s", out)
	}
}
