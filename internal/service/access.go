package service

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/haoyan/vms808/internal/alert"
	"github.com/haoyan/vms808/internal/evidence"
	"github.com/haoyan/vms808/internal/metrics"
	"github.com/haoyan/vms808/internal/protocol/jt808"
	"github.com/haoyan/vms808/internal/protocol/jt1078"
	"github.com/haoyan/vms808/internal/repository"
	"github.com/haoyan/vms808/internal/signal"
)

const (
	readBufSize = 64 * 1024
	// 单连接接收缓冲上限，超出视为协议失步，重置缓冲
	maxConnBuf = 1024 * 1024
)

// AccessService 终端接入服务
// 同一 TCP 连接上会混跑管理报文（0x7e 帧）和媒体包（01cd 帧头），
// 按帧头逐段判别；媒体流也可走独立 UDP 端口
type AccessService struct {
	jt808Addr string
	mediaAddr string
	logger    *zap.Logger

	codec     *jt808.Codec
	assembler *jt1078.Assembler
	catalog   *signal.Catalog
	engine    *alert.Engine
	evidence  *evidence.Manager
	sessions  *SessionRegistry
	reports   *repository.ReportRepository // 可为 nil，历史落库是旁路

	ln      net.Listener
	udpConn *net.UDPConn

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewAccessService 创建接入服务
func NewAccessService(jt808Addr, mediaAddr string, codec *jt808.Codec, assembler *jt1078.Assembler, catalog *signal.Catalog, engine *alert.Engine, ev *evidence.Manager, sessions *SessionRegistry, logger *zap.Logger) *AccessService {
	return &AccessService{
		jt808Addr: jt808Addr,
		mediaAddr: mediaAddr,
		logger:    logger,
		codec:     codec,
		assembler: assembler,
		catalog:   catalog,
		engine:    engine,
		evidence:  ev,
		sessions:  sessions,
		stopCh:    make(chan struct{}),
	}
}

// SetReportRepository 设置位置汇报落库仓库
func (s *AccessService) SetReportRepository(r *repository.ReportRepository) {
	s.reports = r
}

// Start 启动 TCP 接入与 UDP 媒体监听
func (s *AccessService) Start() error {
	ln, err := net.Listen("tcp", s.jt808Addr)
	if err != nil {
		return fmt.Errorf("listen jt808: %w", err)
	}
	s.ln = ln

	udpAddr, err := net.ResolveUDPAddr("udp", s.mediaAddr)
	if err != nil {
		return fmt.Errorf("resolve media addr: %w", err)
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("listen media udp: %w", err)
	}
	s.udpConn = udpConn

	s.logger.Info("接入服务启动",
		zap.String("jt808_addr", s.jt808Addr),
		zap.String("media_udp_addr", s.mediaAddr))

	s.wg.Add(2)
	go s.acceptLoop()
	go s.udpLoop()
	return nil
}

// Stop 停止服务
func (s *AccessService) Stop() {
	close(s.stopCh)
	if s.ln != nil {
		s.ln.Close()
	}
	if s.udpConn != nil {
		s.udpConn.Close()
	}
	s.wg.Wait()
}

func (s *AccessService) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
			}
			s.logger.Warn("accept 失败", zap.Error(err))
			continue
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn 单连接读循环
func (s *AccessService) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	var terminalID string
	defer func() {
		if terminalID != "" {
			s.sessions.Unregister(terminalID, conn)
			s.logger.Info("终端断开", zap.String("terminal_id", terminalID))
		}
	}()

	buf := make([]byte, 0, readBufSize)
	chunk := make([]byte, readBufSize)

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		n, err := conn.Read(chunk)
		if err != nil {
			return
		}
		buf = append(buf, chunk[:n]...)
		if len(buf) > maxConnBuf {
			s.logger.Warn("连接缓冲超限，重置", zap.String("remote", conn.RemoteAddr().String()))
			buf = buf[:0]
			continue
		}

		buf = s.drain(buf, conn, &terminalID)
	}
}

// drain 从缓冲头部尽量多地消费完整帧，返回剩余字节
func (s *AccessService) drain(buf []byte, conn net.Conn, terminalID *string) []byte {
	for len(buf) > 0 {
		switch {
		case buf[0] == 0x7e:
			// 管理报文：找结束定界符
			end := bytes.IndexByte(buf[1:], 0x7e)
			if end < 0 {
				return buf
			}
			if end == 0 {
				// 连续 0x7e（上一帧尾与本帧头相邻），跳过空帧
				buf = buf[1:]
				continue
			}
			frame := buf[:end+2]
			buf = buf[end+2:]
			s.handleFrame(frame, conn, terminalID)

		case len(buf) >= 4 && binary.BigEndian.Uint32(buf[0:4]) == jt1078.FrameMarker:
			pkt, consumed, err := jt1078.ParsePacket(buf)
			if err != nil {
				if errors.Is(err, jt1078.ErrTruncated) {
					return buf
				}
				metrics.MediaPacketsMalformed.Inc()
				buf = buf[1:]
				continue
			}
			// 负载在缓冲收缩后会失效，入队前复制
			pkt.Payload = append([]byte(nil), pkt.Payload...)
			buf = buf[consumed:]
			s.handleMediaPacket(pkt)

		case len(buf) < 4:
			return buf

		default:
			// 失步：逐字节丢弃直到命中任一帧头
			buf = buf[1:]
		}
	}
	return buf
}

// handleFrame 处理一帧管理报文
func (s *AccessService) handleFrame(frame []byte, conn net.Conn, terminalID *string) {
	msg, err := s.codec.Decode(frame)
	if err != nil {
		metrics.FramesMalformed.Inc()
		s.logger.Warn("报文解析失败", zap.Error(err), zap.Int("len", len(frame)))
		return
	}
	metrics.FramesDecoded.Inc()
	if !msg.ChecksumOK {
		metrics.ChecksumMismatches.Inc()
	}

	if *terminalID == "" {
		*terminalID = msg.TerminalID
		s.sessions.Register(msg.TerminalID, conn)
		s.logger.Info("终端接入",
			zap.String("terminal_id", msg.TerminalID),
			zap.String("remote", conn.RemoteAddr().String()))
	}
	s.sessions.Touch(msg.TerminalID)

	s.dispatch(msg)
}

// dispatch 按消息 ID 分发
func (s *AccessService) dispatch(msg *jt808.Message) {
	switch msg.ID {
	case jt808.MsgTerminalRegister:
		s.handleRegister(msg)
	case jt808.MsgTerminalAuth:
		s.handleAuth(msg)
	case jt808.MsgTerminalHeartbeat:
		s.ack(msg, 0)
	case jt808.MsgLocationReport:
		s.handleLocationReport(msg)
	case jt808.MsgTransparentData:
		s.handleTransparent(msg)
	default:
		s.logger.Debug("未处理的消息类型",
			zap.Uint16("msg_id", msg.ID),
			zap.String("terminal_id", msg.TerminalID))
		s.ack(msg, 0)
	}
}

func (s *AccessService) ack(msg *jt808.Message, result byte) {
	frame, err := s.codec.BuildGeneralAck(msg.TerminalID, msg.Serial, msg.ID, result)
	if err != nil {
		s.logger.Error("构造通用应答失败", zap.Error(err))
		return
	}
	if err := s.sessions.Send(msg.TerminalID, frame); err != nil {
		s.logger.Debug("应答发送失败", zap.String("terminal_id", msg.TerminalID), zap.Error(err))
	}
}

func (s *AccessService) handleRegister(msg *jt808.Message) {
	authCode := uuid.New().String()
	frame, err := s.codec.BuildRegisterAck(msg.TerminalID, msg.Serial, 0, authCode)
	if err != nil {
		s.logger.Error("构造注册应答失败", zap.Error(err))
		return
	}
	if err := s.sessions.Send(msg.TerminalID, frame); err != nil {
		s.logger.Warn("注册应答发送失败", zap.String("terminal_id", msg.TerminalID), zap.Error(err))
		return
	}
	s.logger.Info("终端注册", zap.String("terminal_id", msg.TerminalID))
}

func (s *AccessService) handleAuth(msg *jt808.Message) {
	if sess, ok := s.sessions.Get(msg.TerminalID); ok {
		sess.mu.Lock()
		sess.Authenticated = true
		sess.mu.Unlock()
	}
	s.ack(msg, 0)
	s.logger.Info("终端鉴权通过", zap.String("terminal_id", msg.TerminalID))
}

func (s *AccessService) handleLocationReport(msg *jt808.Message) {
	s.ack(msg, 0)

	report := jt808.ParseAlarmReport(msg.Body, msg.TerminalID)
	if report == nil {
		s.logger.Warn("位置汇报长度不足", zap.String("terminal_id", msg.TerminalID))
		return
	}

	if s.reports != nil {
		if err := s.reports.Save(context.Background(), report); err != nil {
			s.logger.Error("位置汇报落库失败", zap.String("terminal_id", msg.TerminalID), zap.Error(err))
		}
	}

	if _, err := s.engine.ProcessReport(context.Background(), report); err != nil {
		s.logger.Error("位置汇报处理失败", zap.String("terminal_id", msg.TerminalID), zap.Error(err))
	}
}

// handleTransparent 0x0900 透传：厂商 ADAS/DMS 报警走文本/编码匹配链
func (s *AccessService) handleTransparent(msg *jt808.Message) {
	s.ack(msg, 0)

	if len(msg.Body) < 2 {
		return
	}
	payload := msg.Body[1:] // 首字节为透传消息类型

	code, ok := s.catalog.VendorSignalFromPayload(payload)
	if !ok {
		s.logger.Debug("透传负载未匹配到厂商信号",
			zap.String("terminal_id", msg.TerminalID),
			zap.Int("len", len(payload)))
		return
	}

	if _, err := s.engine.ProcessExternalSignal(context.Background(), msg.TerminalID, 0, code, time.Now()); err != nil {
		s.logger.Error("厂商信号处理失败", zap.String("terminal_id", msg.TerminalID), zap.Error(err))
	}
}

// handleMediaPacket 媒体包：透传类型直接走厂商解析，其余进帧重组
func (s *AccessService) handleMediaPacket(pkt *jt1078.Packet) {
	metrics.MediaPackets.Inc()

	if pkt.DataType == jt1078.DataTypeTransparent {
		if code, ok := s.catalog.VendorSignalFromPayload(pkt.Payload); ok {
			if _, err := s.engine.ProcessExternalSignal(context.Background(), pkt.TerminalID, int(pkt.Channel), code, time.Now()); err != nil {
				s.logger.Error("媒体透传信号处理失败", zap.String("terminal_id", pkt.TerminalID), zap.Error(err))
			}
		}
		return
	}

	frame := s.assembler.Assemble(pkt)
	if frame == nil {
		return
	}
	metrics.FramesAssembled.Inc()

	if frame.DataType.IsVideo() {
		ts := time.UnixMilli(int64(frame.Timestamp))
		s.evidence.AddFrame(frame.TerminalID, int(frame.Channel), frame.Data, ts, frame.IFrame)
	}
}

// udpLoop UDP 媒体监听，每个数据报独立解析
func (s *AccessService) udpLoop() {
	defer s.wg.Done()

	buf := make([]byte, readBufSize)
	for {
		n, _, err := s.udpConn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
			}
			s.logger.Warn("UDP 读取失败", zap.Error(err))
			continue
		}

		data := buf[:n]
		for len(data) > 0 {
			pkt, consumed, err := jt1078.ParsePacket(data)
			if err != nil {
				metrics.MediaPacketsMalformed.Inc()
				break
			}
			pkt.Payload = append([]byte(nil), pkt.Payload...)
			data = data[consumed:]
			s.handleMediaPacket(pkt)
		}
	}
}
