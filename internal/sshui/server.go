package sshui

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/crypto/ssh"

	"github.com/dastanhayama/whisper/internal/chatmsg"
	"github.com/dastanhayama/whisper/internal/config"
	"github.com/dastanhayama/whisper/internal/directory"
	"github.com/dastanhayama/whisper/internal/identity"
	"github.com/dastanhayama/whisper/internal/room"
	"github.com/dastanhayama/whisper/internal/session"
)

const (
	defaultTermWidth  = 80
	defaultTermHeight = 24
)

// Server accepts SSH connections and bridges each one to a fresh
// Session. The chat server requires no real authentication — identity
// lives entirely in the ephemeral keypair minted per connection, which
// drives the session's fingerprint (the overlay's peer identity is a
// separate, process-wide key) — so every auth method a client offers is
// accepted.
type Server struct {
	cfg    config.Config
	dir    *directory.Directory
	router *room.Router

	sshCfg *ssh.ServerConfig

	mu       sync.Mutex
	listener net.Listener
}

// NewServer builds a Server, loading (or generating and persisting) the
// host key at cfg.SSHHostKeyPath.
func NewServer(cfg config.Config, dir *directory.Directory, router *room.Router) (*Server, error) {
	signer, err := loadOrGenerateHostKey(cfg.SSHHostKeyPath)
	if err != nil {
		return nil, fmt.Errorf("sshui: host key: %w", err)
	}

	sshCfg := &ssh.ServerConfig{
		NoClientAuth: true,
		PasswordCallback: func(c ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			return &ssh.Permissions{}, nil
		},
		PublicKeyCallback: func(c ssh.ConnMetadata, pubKey ssh.PublicKey) (*ssh.Permissions, error) {
			return &ssh.Permissions{}, nil
		},
	}
	sshCfg.AddHostKey(signer)

	return &Server{cfg: cfg, dir: dir, router: router, sshCfg: sshCfg}, nil
}

// ListenAndServe binds cfg.SSHPort and accepts connections until ctx is
// canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.SSHPort))
	if err != nil {
		return fmt.Errorf("sshui: listen: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	slog.Info("sshui: listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var connCount int
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("sshui: accept: %w", err)
		}
		connCount++
		go s.handleConn(ctx, conn, fmt.Sprintf("sess-%d", connCount))
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn, sessionID string) {
	sshConn, chans, reqs, err := ssh.NewServerConn(conn, s.sshCfg)
	if err != nil {
		conn.Close()
		if err != io.EOF {
			slog.Warn("sshui: handshake failed", "err", err)
		}
		return
	}
	defer sshConn.Close()
	go ssh.DiscardRequests(reqs)

	slog.Info("sshui: connected", "remote", sshConn.RemoteAddr().String())
	defer slog.Info("sshui: disconnected", "remote", sshConn.RemoteAddr().String())

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		go s.handleSessionChannel(ctx, newChannel, sessionID)
		// One chat session per connection: a second "session" channel
		// on the same connection would race the first over the same
		// Session, so only the first is served.
		return
	}
}

func (s *Server) handleSessionChannel(ctx context.Context, newChannel ssh.NewChannel, sessionID string) {
	channel, requests, err := newChannel.Accept()
	if err != nil {
		slog.Warn("sshui: accept channel failed", "err", err)
		return
	}
	defer channel.Close()

	width, height := defaultTermWidth, defaultTermHeight
	shellReady := make(chan struct{})

	go func() {
		for req := range requests {
			switch req.Type {
			case "pty-req":
				if w, h, ok := parsePtyRequest(req.Payload); ok {
					width, height = w, h
				}
				req.Reply(true, nil)
			case "shell":
				req.Reply(true, nil)
				close(shellReady)
			case "window-change":
				// Acknowledged but not forwarded: the program keeps the
				// size from the initial pty-req for the whole session.
				req.Reply(true, nil)
			default:
				req.Reply(false, nil)
			}
		}
	}()

	select {
	case <-shellReady:
	case <-ctx.Done():
		return
	}

	s.runShell(ctx, channel, sessionID, width, height)
}

// runShell wires a fresh Session to a bubbletea program and a raw line
// reader, both driven off the same SSH channel: the program only
// writes (rendering), the line reader only reads (input), so there is
// exactly one consumer of each direction of the channel.
func (s *Server) runShell(ctx context.Context, channel ssh.Channel, sessionID string, width, height int) {
	ident, err := identity.Generate()
	if err != nil {
		slog.Error("sshui: generate identity", "err", err)
		return
	}

	model := NewModel("anon_"+ident.Fingerprint()[:6], s.cfg.DefaultRoom)
	program := tea.NewProgram(model,
		tea.WithInput(newBlockingReader(ctx)),
		tea.WithOutput(channel),
		tea.WithoutSignalHandler(),
		tea.WithoutCatchPanics(),
	)

	done := make(chan struct{})
	var closeOnce sync.Once
	closeDone := func() { closeOnce.Do(func() { close(done) }) }

	out := session.Output{
		Message: func(m chatmsg.ChatMessage) {
			program.Send(chatLineMsg{kind: lineKindFor(m), text: formatMessage(m)})
		},
		SystemMsg: func(text string) {
			program.Send(chatLineMsg{kind: lineSystem, text: text})
		},
		UserList: func(users []directory.UserInfo) {
			program.Send(rosterMsg{users: users})
		},
		RoomChange: func(newRoom string) {
			program.Send(roomMsg{room: newRoom})
		},
		Disconnect: func() {
			program.Send(quitMsg{})
			closeDone()
		},
		Clear: func() {
			program.Send(clearTranscriptMsg{})
		},
	}

	sess := session.New(sessionID, ident, s.dir, s.router, s.cfg, out)

	program.Send(tea.WindowSizeMsg{Width: width, Height: height})

	go func() {
		if _, err := program.Run(); err != nil {
			slog.Warn("sshui: program exited with error", "err", err)
		}
		closeDone()
	}()

	if err := sess.Start(ctx); err != nil {
		slog.Error("sshui: session start failed", "err", err)
		program.Quit()
		return
	}

	go readInputLines(channel, func(line string) {
		sess.HandleInput(ctx, line)
	}, func(buf string) {
		program.Send(inputEchoMsg{buffer: buf})
	})

	select {
	case <-done:
	case <-ctx.Done():
		sess.Disconnect(ctx)
	}
	program.Quit()
}

func lineKindFor(m chatmsg.ChatMessage) lineKind {
	switch m.Type {
	case chatmsg.TypeAction:
		return lineAction
	case chatmsg.TypeJoin, chatmsg.TypeLeave, chatmsg.TypeNick:
		return lineSystem
	default:
		return lineOther
	}
}

func formatMessage(m chatmsg.ChatMessage) string {
	switch m.Type {
	case chatmsg.TypeJoin, chatmsg.TypeLeave, chatmsg.TypeNick:
		return m.Content
	case chatmsg.TypeAction:
		return fmt.Sprintf("%s %s", m.Nick, m.Content)
	default:
		return fmt.Sprintf("%s: %s", m.Nick, m.Content)
	}
}

// readInputLines reads raw bytes off channel, applies minimal line
// editing (backspace, Ctrl-U, Enter-to-submit), and calls onLine for
// each completed line and onEcho after every edit so the bubbletea
// program (which never reads this channel itself) can render the
// in-progress input.
func readInputLines(r io.Reader, onLine func(string), onEcho func(string)) {
	var buf bytes.Buffer
	chunk := make([]byte, 256)
	prevCR := false
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			for _, b := range chunk[:n] {
				if b == '\n' && prevCR {
					// "\r\n" is one Enter, not two.
					prevCR = false
					continue
				}
				prevCR = b == '\r'
				switch b {
				case '\r', '\n':
					line := buf.String()
					buf.Reset()
					onEcho("")
					onLine(line)
				case 0x7f, 0x08: // backspace / DEL
					s := buf.String()
					if len(s) > 0 {
						buf.Reset()
						buf.WriteString(s[:len(s)-1])
					}
					onEcho(buf.String())
				case 0x15: // Ctrl-U: clear line
					buf.Reset()
					onEcho("")
				case 0x03: // Ctrl-C: discard current line
					buf.Reset()
					onEcho("")
				default:
					if b >= 0x20 && b < 0x7f {
						buf.WriteByte(b)
						onEcho(buf.String())
					}
				}
			}
		}
		if err != nil {
			return
		}
	}
}

// parsePtyRequest extracts the terminal width/height from an
// RFC 4254 §6.2 pty-req payload (termLen, term, width, height, ...).
func parsePtyRequest(payload []byte) (width, height int, ok bool) {
	if len(payload) < 4 {
		return 0, 0, false
	}
	termLen := int(payload[0])<<24 | int(payload[1])<<16 | int(payload[2])<<8 | int(payload[3])
	rest := payload[4:]
	if len(rest) < termLen+8 {
		return 0, 0, false
	}
	rest = rest[termLen:]
	w := int(rest[0])<<24 | int(rest[1])<<16 | int(rest[2])<<8 | int(rest[3])
	h := int(rest[4])<<24 | int(rest[5])<<16 | int(rest[6])<<8 | int(rest[7])
	if w <= 0 {
		w = defaultTermWidth
	}
	if h <= 0 {
		h = defaultTermHeight
	}
	return w, h, true
}

// blockingReader is handed to bubbletea as its input source in place of
// the SSH channel: the channel's actual bytes are consumed exclusively
// by readInputLines, so bubbletea's input loop must never produce any
// (it only renders via Send). It blocks until ctx is canceled.
type blockingReader struct {
	ctx context.Context
}

func newBlockingReader(ctx context.Context) io.Reader {
	return &blockingReader{ctx: ctx}
}

func (b *blockingReader) Read(p []byte) (int, error) {
	<-b.ctx.Done()
	return 0, io.EOF
}

func loadOrGenerateHostKey(path string) (ssh.Signer, error) {
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			return ssh.ParsePrivateKey(data)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read host key: %w", err)
		}
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate host key: %w", err)
	}

	if path != "" {
		block, err := ssh.MarshalPrivateKey(priv, "whisper host key")
		if err != nil {
			return nil, fmt.Errorf("marshal host key: %w", err)
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return nil, fmt.Errorf("create key dir: %w", err)
			}
		}
		if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
			return nil, fmt.Errorf("write host key: %w", err)
		}
	}

	return ssh.NewSignerFromKey(priv)
}
