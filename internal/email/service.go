package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/labnode/lims-api/internal/config"
	"github.com/labnode/lims-api/pkg/logger"
)

// Service delivers outbound mail for the lab workflow. Critical value
// notifications go to the configured on-call recipients.
type Service interface {
	SendCriticalAlert(ctx context.Context, patientName, testName, value string) error
	SendCustom(ctx context.Context, to string, subject string, content string) error
}

type gomailService struct {
	dialer     *gomail.Dialer
	from       string
	recipients []string
	logger     *logger.Logger
}

func NewService(cfg config.SMTPConfig, logger *logger.Logger) Service {
	return &gomailService{
		dialer:     gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:       cfg.From,
		recipients: cfg.Recipients,
		logger:     logger,
	}
}

func (s *gomailService) SendCriticalAlert(ctx context.Context, patientName, testName, value string) error {
	subject := fmt.Sprintf("CRITICAL RESULT: %s", testName)
	body := fmt.Sprintf(
		"A critical lab value requires immediate review.\n\nPatient: %s\nTest: %s\nValue: %s\n\nAcknowledge the alert in the LIMS console.",
		patientName, testName, value,
	)
	return s.send(s.recipients, subject, body)
}

func (s *gomailService) SendCustom(ctx context.Context, to string, subject string, content string) error {
	return s.send([]string{to}, subject, content)
}

func (s *gomailService) send(to []string, subject, body string) error {
	if len(to) == 0 {
		return fmt.Errorf("no recipients configured")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("Email sent", "subject", subject)
	return nil
}
