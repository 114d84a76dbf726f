package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrIncompleteConfig = errors.New("SMTP 配置不完整")
	ErrSendFailed       = errors.New("邮件发送失败")
)

// SMTPConfig 单次投递使用的 SMTP 凭据（按用户配置解析）
type SMTPConfig struct {
	Host     string
	Port     int
	Secure   bool // true = 隐式 TLS（465），false = STARTTLS/明文
	User     string
	Password string
}

// Complete 判断凭据是否完整可用
func (c *SMTPConfig) Complete() bool {
	return c != nil && c.Host != "" && c.Port > 0 && c.User != "" && c.Password != ""
}

// Message 一封待发送的邮件
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender 邮件发送能力抽象（测试中以 mock 替换）
type Sender interface {
	// Send 使用给定凭据发送邮件
	Send(ctx context.Context, cfg *SMTPConfig, msg *Message) error
	// Verify 连通性预检：建立连接并完成认证后立即退出
	Verify(ctx context.Context, cfg *SMTPConfig) error
}

// Mailer 基于 net/smtp 的 Sender 实现
// 连接与读写均设置超时，避免挂起的 SMTP 服务器阻塞扫描周期
type Mailer struct {
	dialTimeout time.Duration
	ioTimeout   time.Duration
	logger      *zap.Logger
}

// NewMailer 创建 Mailer 实例
func NewMailer(logger *zap.Logger) *Mailer {
	return &Mailer{
		dialTimeout: 10 * time.Second,
		ioTimeout:   15 * time.Second,
		logger:      logger,
	}
}

// Send 发送邮件
func (m *Mailer) Send(ctx context.Context, cfg *SMTPConfig, msg *Message) error {
	if !cfg.Complete() {
		return ErrIncompleteConfig
	}

	client, err := m.connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	defer client.Quit()

	if err := client.Mail(cfg.User); err != nil {
		return fmt.Errorf("%w: MAIL FROM 被拒绝: %v", ErrSendFailed, err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("%w: RCPT TO 被拒绝: %v", ErrSendFailed, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	if _, err := w.Write(buildMIME(cfg.User, msg)); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	return nil
}

// Verify 连通性预检
func (m *Mailer) Verify(ctx context.Context, cfg *SMTPConfig) error {
	if !cfg.Complete() {
		return ErrIncompleteConfig
	}

	client, err := m.connect(ctx, cfg)
	if err != nil {
		return err
	}
	return client.Quit()
}

// connect 建立连接、协商 TLS 并完成认证
func (m *Mailer) connect(ctx context.Context, cfg *SMTPConfig) (*smtp.Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	dialer := &net.Dialer{Timeout: m.dialTimeout}

	var conn net.Conn
	var err error
	if cfg.Secure {
		// 隐式 TLS（通常为 465 端口）
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: cfg.Host}}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("连接 SMTP 服务器失败: %w", err)
	}

	// 读写超时覆盖整个会话
	if err := conn.SetDeadline(time.Now().Add(m.ioTimeout)); err != nil {
		conn.Close()
		return nil, err
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SMTP 握手失败: %w", err)
	}

	// 明文连接升级为 STARTTLS（通常为 587 端口）
	if !cfg.Secure {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
				client.Close()
				return nil, fmt.Errorf("STARTTLS 失败: %w", err)
			}
		}
	}

	auth := smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host)
	if err := client.Auth(auth); err != nil {
		client.Close()
		return nil, fmt.Errorf("SMTP 认证失败: %w", err)
	}

	return client, nil
}

// buildMIME 构造 multipart/alternative 邮件体（纯文本 + HTML）
func buildMIME(from string, msg *Message) []byte {
	boundary := "medcontrol-" + uuid.New().String()

	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: multipart/alternative; boundary=\"" + boundary + "\"\r\n")
	b.WriteString("\r\n")

	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(msg.Text)
	b.WriteString("\r\n")

	if msg.HTML != "" {
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n\r\n")
		b.WriteString(msg.HTML)
		b.WriteString("\r\n")
	}

	b.WriteString("--" + boundary + "--\r\n")
	return []byte(b.String())
}
