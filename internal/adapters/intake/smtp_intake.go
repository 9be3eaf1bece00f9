package intake

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/core"
)

// Triage result headers stamped onto every forwarded message.
const (
	headerCategory   = "X-Triage-Category"
	headerImportance = "X-Triage-Importance"
	headerConfidence = "X-Triage-Confidence"
	headerLayer      = "X-Triage-Layer"
	headerReview     = "X-Triage-Review"
	headerError      = "X-Triage-Error"
)

// SMTPIntakeConfig holds the settings for the SMTP content filter.
type SMTPIntakeConfig struct {
	ListenAddr       string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	MaxMessageBytes  int
	MaxRecipients    int
	UpstreamHost     string
	UpstreamPort     int
	RejectSpam       bool
	DefaultAccountID string
}

// SMTPIntake is a Postfix-style content filter. It accepts mail on a local
// SMTP port, triages it, stamps X-Triage-* headers, and re-injects the
// message into the upstream MTA.
type SMTPIntake struct {
	triager Triager
	trust   DomainTrust
	cfg     SMTPIntakeConfig
	server  *smtp.Server
	logger  *zap.Logger
}

// NewSMTPIntake creates a new SMTP intake.
func NewSMTPIntake(triager Triager, trust DomainTrust, cfg SMTPIntakeConfig, logger *zap.Logger) *SMTPIntake {
	return &SMTPIntake{
		triager: triager,
		trust:   trust,
		cfg:     cfg,
		logger:  logger,
	}
}

// Start begins accepting SMTP connections in a background goroutine.
func (in *SMTPIntake) Start() error {
	in.server = smtp.NewServer(&smtpBackend{intake: in})
	in.server.Addr = in.cfg.ListenAddr
	in.server.Domain = "localhost"
	in.server.ReadTimeout = in.cfg.ReadTimeout
	in.server.WriteTimeout = in.cfg.WriteTimeout
	in.server.MaxMessageBytes = int64(in.cfg.MaxMessageBytes)
	in.server.MaxRecipients = in.cfg.MaxRecipients
	in.server.AllowInsecureAuth = true

	in.logger.Info("SMTP intake starting", zap.String("address", in.cfg.ListenAddr))

	go func() {
		if err := in.server.ListenAndServe(); err != nil && err != smtp.ErrServerClosed {
			in.logger.Error("SMTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop shuts the SMTP server down.
func (in *SMTPIntake) Stop() error {
	if in.server != nil {
		return in.server.Close()
	}
	return nil
}

// forwardUpstream re-injects the stamped message into the upstream MTA.
func (in *SMTPIntake) forwardUpstream(sender string, recipients []string, data []byte) error {
	addr := fmt.Sprintf("%s:%d", in.cfg.UpstreamHost, in.cfg.UpstreamPort)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to upstream MTA: %w", err)
	}
	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}
	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	accepted := false
	for _, rcpt := range recipients {
		if err := c.Rcpt(rcpt, nil); err != nil {
			in.logger.Warn("RCPT TO rejected by upstream",
				zap.String("recipient", rcpt),
				zap.Error(err))
			continue
		}
		accepted = true
	}
	if !accepted {
		return fmt.Errorf("upstream rejected all recipients")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send message data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		in.logger.Warn("QUIT failed after successful delivery", zap.Error(err))
	}
	return nil
}

type smtpBackend struct {
	intake *SMTPIntake
}

func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{intake: b.intake}, nil
}

type smtpSession struct {
	intake     *SMTPIntake
	sender     string
	recipients []string
}

func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

func (s *smtpSession) AuthPlain(_, _ string) error {
	return smtp.ErrAuthUnsupported
}

func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

func (s *smtpSession) Logout() error {
	return nil
}

func (s *smtpSession) Data(r io.Reader) error {
	rawData, err := io.ReadAll(r)
	if err != nil {
		s.intake.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	msg, err := mail.ReadMessage(bytes.NewReader(rawData))
	if err != nil {
		s.intake.logger.Error("Failed to parse message", zap.Error(err))
		return err
	}

	email, err := s.buildEmail(msg)
	if err != nil {
		s.intake.logger.Error("Failed to extract message content", zap.Error(err))
		return err
	}

	_, senderDomain := core.NormalizeSender(email.Sender)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var outcome *Outcome
	var triageErr error
	if s.intake.trust != nil && s.intake.trust.IsTrusted(senderDomain) {
		outcome = trustedOutcome(senderDomain)
	} else {
		outcome, triageErr = s.intake.triager.Triage(ctx, email)
		if triageErr != nil {
			s.intake.logger.Error("Triage failed, forwarding unclassified",
				zap.String("sender", email.Sender),
				zap.String("sender_domain", senderDomain),
				zap.Error(triageErr))
			outcome = &Outcome{
				Category:   core.CategoryNiceToKnow,
				Importance: 0.5,
				Confidence: 0.0,
				Layer:      "error",
				Provider:   core.ProviderNone,
				Reasoning:  "triage error: " + triageErr.Error(),
			}
		}
	}

	if outcome.Category == core.CategorySpam && s.intake.cfg.RejectSpam && triageErr == nil {
		s.intake.logger.Info("Rejecting spam",
			zap.String("sender", email.Sender),
			zap.String("sender_domain", senderDomain),
			zap.Float64("confidence", outcome.Confidence),
			zap.String("layer", outcome.Layer))
		return fmt.Errorf("550 rejected as spam (confidence: %.2f)", outcome.Confidence)
	}

	stamped := stampHeaders(msg, rawData, outcome, triageErr)

	if err := s.intake.forwardUpstream(s.sender, s.recipients, stamped); err != nil {
		s.intake.logger.Error("Failed to forward message upstream",
			zap.String("sender", email.Sender),
			zap.Error(err))
		return err
	}

	s.intake.logger.Info("Processed email",
		zap.String("sender", email.Sender),
		zap.String("sender_domain", senderDomain),
		zap.String("category", string(outcome.Category)),
		zap.Float64("importance", outcome.Importance),
		zap.Float64("confidence", outcome.Confidence),
		zap.String("layer", outcome.Layer))

	return nil
}

func (s *smtpSession) buildEmail(msg *mail.Message) (*core.Email, error) {
	textContent, err := extractTextFromMessage(msg)
	if err != nil {
		return nil, err
	}

	subject := msg.Header.Get("Subject")
	if decoded, err := decodeEncodedHeader(subject); err == nil {
		subject = decoded
	}

	email := &core.Email{
		EmailID:        uuid.NewString(),
		AccountID:      s.intake.cfg.DefaultAccountID,
		Sender:         s.sender,
		To:             append([]string(nil), s.recipients...),
		Subject:        subject,
		Body:           textContent,
		Headers:        map[string][]string(msg.Header),
		ReceivedAt:     time.Now(),
		HasAttachments: hasAttachments(msg),
		IsReply:        msg.Header.Get("In-Reply-To") != "" || strings.HasPrefix(strings.ToLower(subject), "re:"),
	}
	return email, nil
}

// stampHeaders prepends the triage headers to the raw message, keeping the
// original headers and body byte-for-byte.
func stampHeaders(msg *mail.Message, rawData []byte, outcome *Outcome, triageErr error) []byte {
	var out bytes.Buffer

	fmt.Fprintf(&out, "%s: %s\r\n", headerCategory, outcome.Category)
	fmt.Fprintf(&out, "%s: %.4f\r\n", headerImportance, outcome.Importance)
	fmt.Fprintf(&out, "%s: %.4f\r\n", headerConfidence, outcome.Confidence)
	fmt.Fprintf(&out, "%s: %s\r\n", headerLayer, outcome.Layer)
	if outcome.NeedsReview {
		fmt.Fprintf(&out, "%s: true\r\n", headerReview)
	}
	if triageErr != nil {
		fmt.Fprintf(&out, "%s: %s\r\n", headerError, strings.ReplaceAll(triageErr.Error(), "\n", " "))
	}

	for key, values := range msg.Header {
		for _, value := range values {
			fmt.Fprintf(&out, "%s: %s\r\n", key, value)
		}
	}
	out.WriteString("\r\n")

	// Reuse the raw body so MIME parts and attachments survive untouched.
	if i := bytes.Index(rawData, []byte("\r\n\r\n")); i >= 0 {
		out.Write(rawData[i+4:])
	} else if i := bytes.Index(rawData, []byte("\n\n")); i >= 0 {
		out.Write(rawData[i+2:])
	}

	return out.Bytes()
}
