package auth

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailguard/backend/internal/config"
)

// startFakePOP3 启动一个单连接的假 POP3 服务器。
// acceptPass 决定 PASS 命令的应答。
func startFakePOP3(t *testing.T, acceptPass bool) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		reader := bufio.NewReader(conn)
		conn.Write([]byte("+OK fake POP3 ready\r\n"))

		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "USER "):
				conn.Write([]byte("+OK user accepted\r\n"))
			case strings.HasPrefix(cmd, "PASS "):
				if acceptPass {
					conn.Write([]byte("+OK logged in\r\n"))
				} else {
					conn.Write([]byte("-ERR authentication failed\r\n"))
				}
			case cmd == "QUIT":
				conn.Write([]byte("+OK bye\r\n"))
				return
			default:
				conn.Write([]byte("-ERR unknown command\r\n"))
			}
		}
	}()

	return listener.Addr().String()
}

func TestPOP3Prober_Success(t *testing.T) {
	addr := startFakePOP3(t, true)
	prober := NewPOP3Prober(&config.POP3Config{Address: addr, Timeout: 2 * time.Second})

	err := prober.Probe(context.Background(), "user@example.com", "secret")
	assert.NoError(t, err)
}

func TestPOP3Prober_BadCredentials(t *testing.T) {
	addr := startFakePOP3(t, false)
	prober := NewPOP3Prober(&config.POP3Config{Address: addr, Timeout: 2 * time.Second})

	err := prober.Probe(context.Background(), "user@example.com", "wrong")
	assert.ErrorIs(t, err, ErrProbeFailed)
}

func TestPOP3Prober_ConnectionRefused(t *testing.T) {
	// Grab a port and close it again so nothing is listening
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	listener.Close()

	prober := NewPOP3Prober(&config.POP3Config{Address: addr, Timeout: time.Second})
	err = prober.Probe(context.Background(), "user@example.com", "secret")
	assert.ErrorIs(t, err, ErrProbeFailed)
}
