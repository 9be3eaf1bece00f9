package intake

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/core"
)

// CLIIntake triages a single message read from a stream and prints the
// outcome, for use from the command line.
type CLIIntake struct {
	triager   Triager
	trust     DomainTrust
	accountID string
	verbose   bool
	logger    *zap.Logger
}

// NewCLIIntake creates a new CLI intake.
func NewCLIIntake(triager Triager, trust DomainTrust, accountID string, verbose bool, logger *zap.Logger) *CLIIntake {
	return &CLIIntake{
		triager:   triager,
		trust:     trust,
		accountID: accountID,
		verbose:   verbose,
		logger:    logger,
	}
}

// ParseMessage reads an RFC 5322 message and converts it to an Email.
func (c *CLIIntake) ParseMessage(r io.Reader) (*core.Email, error) {
	rawData, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}

	msg, err := mail.ReadMessage(bytes.NewReader(rawData))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	textContent, err := extractTextFromMessage(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to extract content: %w", err)
	}

	subject := msg.Header.Get("Subject")
	if decoded, err := decodeEncodedHeader(subject); err == nil {
		subject = decoded
	}

	return &core.Email{
		EmailID:        uuid.NewString(),
		AccountID:      c.accountID,
		Sender:         msg.Header.Get("From"),
		To:             msg.Header["To"],
		Subject:        subject,
		Body:           textContent,
		Headers:        map[string][]string(msg.Header),
		ReceivedAt:     time.Now(),
		HasAttachments: hasAttachments(msg),
		IsReply:        msg.Header.Get("In-Reply-To") != "",
	}, nil
}

// ProcessEmail triages the email and prints the outcome to stdout.
func (c *CLIIntake) ProcessEmail(ctx context.Context, email *core.Email) (*Outcome, error) {
	c.logger.Debug("Processing email", zap.String("sender", email.Sender))

	fmt.Printf("\n=== Email Summary ===\n")
	fmt.Printf("From: %s\n", email.Sender)
	fmt.Printf("To: %s\n", email.To)
	fmt.Printf("Subject: %s\n", email.Subject)
	fmt.Printf("Body length: %d bytes\n", len(email.Body))

	if c.verbose {
		preview := email.Body
		if len(preview) > 500 {
			preview = preview[:500] + "..."
		}
		fmt.Printf("\nBody preview:\n%s\n", preview)
	}

	_, senderDomain := core.NormalizeSender(email.Sender)

	var outcome *Outcome
	start := time.Now()
	if c.trust != nil && c.trust.IsTrusted(senderDomain) {
		outcome = trustedOutcome(senderDomain)
	} else {
		var err error
		outcome, err = c.triager.Triage(ctx, email)
		if err != nil {
			c.logger.Error("Failed to triage email", zap.Error(err))
			fmt.Printf("Error: %v\n", err)
			return nil, err
		}
	}
	duration := time.Since(start)

	fmt.Printf("\n=== Results ===\n")
	fmt.Printf("Category: %s\n", outcome.Category)
	fmt.Printf("Importance: %.4f\n", outcome.Importance)
	fmt.Printf("Confidence: %.4f\n", outcome.Confidence)
	fmt.Printf("Layer: %s\n", outcome.Layer)
	if outcome.Provider != core.ProviderNone {
		fmt.Printf("Provider: %s\n", outcome.Provider)
	}
	if outcome.NeedsReview {
		fmt.Printf("Needs review: true\n")
	}
	fmt.Printf("Reasoning: %s\n", outcome.Reasoning)
	fmt.Printf("Processing time: %v\n", duration)

	return outcome, nil
}
