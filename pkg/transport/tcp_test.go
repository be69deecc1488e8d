package transport

import (
	"io"
	"net"
	"testing"
	"time"
)

func TestNewTCP(t *testing.T) {
	t.Run("with handler", func(t *testing.T) {
		tcp, err := NewTCP(TCPConfig{
			ListenAddr: "127.0.0.1:0",
			Handler:    func(net.Conn) {},
		})
		if err != nil {
			t.Fatalf("NewTCP() error = %v", err)
		}
		defer tcp.Stop()

		if tcp.listener == nil {
			t.Error("NewTCP() listener is nil")
		}
	})

	t.Run("without handler", func(t *testing.T) {
		_, err := NewTCP(TCPConfig{
			ListenAddr: "127.0.0.1:0",
		})
		if err != ErrNoHandler {
			t.Errorf("NewTCP() error = %v, want %v", err, ErrNoHandler)
		}
	})

	t.Run("with injected listener", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("Listen() error = %v", err)
		}

		tcp, err := NewTCP(TCPConfig{
			Listener: listener,
			Handler:  func(net.Conn) {},
		})
		if err != nil {
			t.Fatalf("NewTCP() error = %v", err)
		}
		defer tcp.Stop()

		if tcp.listener != listener {
			t.Error("NewTCP() did not use injected listener")
		}
	})
}

func TestTCPStartStop(t *testing.T) {
	tcp, err := NewTCP(TCPConfig{
		ListenAddr: "127.0.0.1:0",
		Handler:    func(net.Conn) {},
	})
	if err != nil {
		t.Fatalf("NewTCP() error = %v", err)
	}

	if err := tcp.Start(); err != nil {
		t.Errorf("Start() error = %v", err)
	}
	if err := tcp.Start(); err != ErrAlreadyStarted {
		t.Errorf("Start() second call error = %v, want %v", err, ErrAlreadyStarted)
	}
	if err := tcp.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := tcp.Stop(); err != ErrClosed {
		t.Errorf("Stop() second call error = %v, want %v", err, ErrClosed)
	}
	if err := tcp.Start(); err != ErrClosed {
		t.Errorf("Start() after Stop error = %v, want %v", err, ErrClosed)
	}
}

func TestTCPEcho(t *testing.T) {
	tcp, err := NewTCP(TCPConfig{
		ListenAddr: "127.0.0.1:0",
		Handler: func(conn net.Conn) {
			_, _ = io.Copy(conn, conn)
		},
	})
	if err != nil {
		t.Fatalf("NewTCP() error = %v", err)
	}
	if err := tcp.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer tcp.Stop()

	conn, err := net.DialTimeout("tcp", tcp.LocalAddr().String(), time.Second)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("ReadFull() error = %v", err)
	}
	if string(buf) != "ping" {
		t.Errorf("echo = %q, want %q", buf, "ping")
	}
}

func TestTCPStopClosesConnections(t *testing.T) {
	started := make(chan struct{})
	tcp, err := NewTCP(TCPConfig{
		ListenAddr: "127.0.0.1:0",
		Handler: func(conn net.Conn) {
			close(started)
			_, _ = io.Copy(io.Discard, conn)
		},
	})
	if err != nil {
		t.Fatalf("NewTCP() error = %v", err)
	}

	c0, c1 := net.Pipe()
	defer c0.Close()
	tcp.AddConnection(c1)
	<-started

	done := make(chan struct{})
	go func() {
		_ = tcp.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() did not return")
	}
}
