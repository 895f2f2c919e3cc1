package service

import (
	"errors"
	"net"
	"sync"
	"time"
)

// ErrTerminalOffline 终端不在线，下行指令无法送达
var ErrTerminalOffline = errors.New("terminal offline")

// Session 终端连接会话
type Session struct {
	TerminalID    string    `json:"terminal_id"`
	RemoteAddr    string    `json:"remote_addr"`
	ConnectedAt   time.Time `json:"connected_at"`
	Authenticated bool      `json:"authenticated"`
	LastSeen      time.Time `json:"last_seen"`

	conn net.Conn
	mu   sync.Mutex
}

// Send 向终端写一帧，写操作串行化
func (s *Session) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Write(frame)
	return err
}

// SessionRegistry 在线终端注册表
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionRegistry 创建注册表
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*Session)}
}

// Register 登记终端会话，同终端重连时替换旧会话
func (r *SessionRegistry) Register(terminalID string, conn net.Conn) *Session {
	s := &Session{
		TerminalID:  terminalID,
		RemoteAddr:  conn.RemoteAddr().String(),
		ConnectedAt: time.Now(),
		LastSeen:    time.Now(),
		conn:        conn,
	}

	r.mu.Lock()
	r.sessions[terminalID] = s
	r.mu.Unlock()
	return s
}

// Unregister 注销会话，仅当登记的连接与传入连接一致时删除
func (r *SessionRegistry) Unregister(terminalID string, conn net.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[terminalID]; ok && s.conn == conn {
		delete(r.sessions, terminalID)
	}
}

// Get 查询会话
func (r *SessionRegistry) Get(terminalID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[terminalID]
	return s, ok
}

// Send 向指定终端发送一帧
func (r *SessionRegistry) Send(terminalID string, frame []byte) error {
	s, ok := r.Get(terminalID)
	if !ok {
		return ErrTerminalOffline
	}
	return s.Send(frame)
}

// Touch 更新终端活跃时间
func (r *SessionRegistry) Touch(terminalID string) {
	r.mu.RLock()
	s, ok := r.sessions[terminalID]
	r.mu.RUnlock()
	if ok {
		s.mu.Lock()
		s.LastSeen = time.Now()
		s.mu.Unlock()
	}
}

// SessionInfo 会话快照
type SessionInfo struct {
	TerminalID    string    `json:"terminal_id"`
	RemoteAddr    string    `json:"remote_addr"`
	ConnectedAt   time.Time `json:"connected_at"`
	Authenticated bool      `json:"authenticated"`
	LastSeen      time.Time `json:"last_seen"`
}

// List 在线会话快照
func (r *SessionRegistry) List() []SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		s.mu.Lock()
		out = append(out, SessionInfo{
			TerminalID:    s.TerminalID,
			RemoteAddr:    s.RemoteAddr,
			ConnectedAt:   s.ConnectedAt,
			Authenticated: s.Authenticated,
			LastSeen:      s.LastSeen,
		})
		s.mu.Unlock()
	}
	return out
}
