package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"sort"
	"strings"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/username/navhub/src/config"
	"github.com/username/navhub/src/logger"
	"github.com/username/navhub/src/renderer"
)

func NewEmailService() EmailService {
	if config.Cfg == nil {
		logger.L.Error("Configuration (config.Cfg) is nil. Email service will default to mock.")
		return &MockEmailService{}
	}

	provider := strings.ToLower(config.Cfg.EmailServiceProvider)
	logger.L.Info("Initializing email service", "provider", provider)

	switch provider {
	case "mailgun":
		if config.Cfg.MailgunDomain == "" || config.Cfg.MailgunPrivateAPIKey == "" || config.Cfg.SenderEmail == "" {
			logger.L.Warn("Mailgun configuration incomplete (Domain, API Key, or SenderEmail missing). Falling back to MockEmailService.")
			return &MockEmailService{}
		}
		mg := mailgun.NewMailgun(config.Cfg.MailgunDomain, config.Cfg.MailgunPrivateAPIKey)
		logger.L.Info("Mailgun client initialized", "domain", config.Cfg.MailgunDomain)
		return &MailgunEmailService{
			mg:          mg,
			senderEmail: config.Cfg.SenderEmail,
			senderName:  config.Cfg.SenderName,
		}
	case "smtp":
		if config.Cfg.SMTPServer == "" || config.Cfg.SMTPUser == "" || config.Cfg.SMTPPassword == "" || config.Cfg.SenderEmail == "" {
			logger.L.Warn("SMTP configuration incomplete. Falling back to MockEmailService.")
			return &MockEmailService{}
		}
		return &SMTPEmailService{
			SMTPServer:   config.Cfg.SMTPServer,
			SMTPPort:     config.Cfg.SMTPPort,
			SMTPUser:     config.Cfg.SMTPUser,
			SMTPPassword: config.Cfg.SMTPPassword,
			SenderEmail:  config.Cfg.SenderEmail,
		}
	default:
		logger.L.Info("Defaulting to MockEmailService.")
		return &MockEmailService{}
	}
}

// reportSubjectBody builds the per-template subject and body. The SIX body
// carries distinct series counts per source.
func reportSubjectBody(msg ReportMessage) (string, string) {
	if msg.TemplateType == renderer.TemplateSIX {
		sources := make([]string, 0, len(msg.SeriesBySource))
		for source := range msg.SeriesBySource {
			sources = append(sources, source)
		}
		sort.Strings(sources)

		lines := []string{
			"Hi team,",
			"",
			"I hope you are well.",
			"",
			"Attached please find the pricing distribution information for the issuers we function as the calculation agent.",
			"",
		}
		total := 0
		for _, source := range sources {
			count := msg.SeriesBySource[source]
			total += count
			lines = append(lines, fmt.Sprintf("%s: %d", source, count))
		}
		lines = append(lines, "", fmt.Sprintf("Total series: %d", total), "", "Many thanks,")
		return "Pricing distribution - " + strings.Join(sources, ", "), strings.Join(lines, "\n")
	}

	return "Calculation Agent ETPs - Morningstar NAV Update",
		`Hi team,

I hope you are well.

Please find attached the updated NAV for the pricing distribution process of the different notes for which we function as the calculation agent.

Many thanks,`
}

type MailgunEmailService struct {
	mg          mailgun.Mailgun
	senderEmail string
	senderName  string
}

func (s *MailgunEmailService) SendReport(ctx context.Context, msg ReportMessage) error {
	subject, body := reportSubjectBody(msg)
	from := fmt.Sprintf("%s <%s>", s.senderName, s.senderEmail)

	message := mailgun.NewMessage(from, subject, body, msg.Recipients...)
	for _, att := range msg.Attachments {
		message.AddBufferAttachment(att.Filename, att.Content)
	}

	_, _, err := s.mg.Send(ctx, message)
	if err != nil {
		logger.L.Error("Failed to send report via Mailgun", "error", err, "template", msg.TemplateType)
		return fmt.Errorf("failed to send report via Mailgun: %w", err)
	}
	logger.L.Info("Report sent via Mailgun", "template", msg.TemplateType, "recipients", len(msg.Recipients))
	return nil
}

type SMTPEmailService struct {
	SMTPServer   string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SenderEmail  string
}

func (s *SMTPEmailService) SendReport(ctx context.Context, msg ReportMessage) error {
	subject, body := reportSubjectBody(msg)

	payload, err := buildMIMEMessage(s.SenderEmail, msg.Recipients, subject, body, msg.Attachments)
	if err != nil {
		return err
	}

	auth := smtp.PlainAuth("", s.SMTPUser, s.SMTPPassword, s.SMTPServer)
	addr := fmt.Sprintf("%s:%d", s.SMTPServer, s.SMTPPort)
	if err := smtp.SendMail(addr, auth, s.SenderEmail, msg.Recipients, payload); err != nil {
		logger.L.Error("Failed to send report via SMTP", "error", err, "template", msg.TemplateType)
		return fmt.Errorf("failed to send report via SMTP: %w", err)
	}
	logger.L.Info("Report sent via SMTP", "template", msg.TemplateType, "recipients", len(msg.Recipients))
	return nil
}

// buildMIMEMessage assembles a multipart/mixed payload with base64-encoded
// spreadsheet attachments.
func buildMIMEMessage(from string, to []string, subject, body string, attachments []Attachment) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", writer.Boundary())

	textHeader := textproto.MIMEHeader{}
	textHeader.Set("Content-Type", `text/plain; charset="UTF-8"`)
	textPart, err := writer.CreatePart(textHeader)
	if err != nil {
		return nil, fmt.Errorf("create text part: %w", err)
	}
	textPart.Write([]byte(body))

	for _, att := range attachments {
		attHeader := textproto.MIMEHeader{}
		attHeader.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		attHeader.Set("Content-Transfer-Encoding", "base64")
		attHeader.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Filename))
		part, err := writer.CreatePart(attHeader)
		if err != nil {
			return nil, fmt.Errorf("create attachment part for %s: %w", att.Filename, err)
		}
		encoded := base64.StdEncoding.EncodeToString(att.Content)
		// RFC 2045 line-length limit.
		for len(encoded) > 76 {
			part.Write([]byte(encoded[:76] + "\r\n"))
			encoded = encoded[76:]
		}
		part.Write([]byte(encoded + "\r\n"))
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize MIME message: %w", err)
	}
	return buf.Bytes(), nil
}

// MockEmailService logs instead of sending. Used in development and when
// provider configuration is incomplete.
type MockEmailService struct {
	Sent []ReportMessage // recorded for tests
}

func (s *MockEmailService) SendReport(ctx context.Context, msg ReportMessage) error {
	s.Sent = append(s.Sent, msg)
	logger.L.Info("MOCK EMAIL: report dispatch",
		"template", msg.TemplateType,
		"recipients", strings.Join(msg.Recipients, ", "),
		"attachments", len(msg.Attachments),
		"date", msg.RunDate.Format("2006-01-02"))
	return nil
}
