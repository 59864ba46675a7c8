package notify

import (
	"context"
	"fmt"

	"github.com/adamara/apiserver/config"
	"github.com/wneessen/go-mail"
)

// mailClient is the part of *mail.Client used by MailSender.
type mailClient interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
	Close() error
}

// MailSender delivers notifications over SMTP. The client is built once
// at startup and shared by all deliveries.
type MailSender struct {
	client   mailClient
	from     string
	fromName string

	// sem admits one SMTP session at a time.
	sem chan struct{}
}

// NewSMTPClient builds a go-mail client from cfg. Authentication is only
// configured when a username is set.
func NewSMTPClient(cfg config.SMTPConfig) (*mail.Client, error) {
	var opts []mail.Option
	if cfg.UseTLS {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	opts = append(opts, mail.WithPort(cfg.Port))
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return client, nil
}

func NewMailSender(client mailClient, from, fromName string) *MailSender {
	return &MailSender{client: client, from: from, fromName: fromName, sem: make(chan struct{}, 1)}
}

func (s *MailSender) Send(ctx context.Context, event Event) error {
	rendered, err := Render(event)
	if err != nil {
		return err
	}

	msg := mail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.from); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(rendered.To); err != nil {
		return fmt.Errorf("recipient address: %w", err)
	}
	msg.Subject(rendered.Subject)
	msg.SetBodyString(mail.TypeTextPlain, rendered.Text)
	msg.AddAlternativeString(mail.TypeTextHTML, rendered.HTML)

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("send mail: %w", ctx.Err())
	}
	defer func() { <-s.sem }()

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// Close releases the SMTP client.
func (s *MailSender) Close() error {
	return s.client.Close()
}
