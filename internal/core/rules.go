package core

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
)

// Pattern family fixed results. The low fallback confidences are what let
// the next layer run in the early-stopping orchestrator.
const (
	ruleSpamConfidence         = 0.95
	ruleAutoReplyConfidence    = 0.70
	ruleNewsletterConfidence   = 0.65
	ruleNotificationConfidence = 0.50
	ruleWeakConfidence         = 0.30
	ruleNoMatchConfidence      = 0.20
)

type namedPattern struct {
	name string
	re   *regexp.Regexp
}

var spamKeywords = []string{
	"viagra", "casino", "lottery", "lotterie", "gewinnspiel", "kostenlos",
	"gratis", "jackpot", "jetzt kaufen", "klicken sie hier", "click here now",
	"congratulations you won", "sie haben gewonnen", "geld verdienen",
	"make money fast", "prince", "inheritance", "erbschaft", "wire transfer",
	"bitcoin investment", "krypto gewinn", "act now", "limited time offer",
	"nur heute", "enlargement", "singles in your area", "passwort bestätigen",
	"verify your account immediately",
}

var spamPatterns = []namedPattern{
	{"repeated_re_prefix", regexp.MustCompile(`(?i)^(re:\s*){3,}`)},
	{"dollar_amounts", regexp.MustCompile(`\${2,}|\$\d{4,}`)},
	{"excessive_exclamation", regexp.MustCompile(`!{3,}`)},
	{"hundred_percent_free", regexp.MustCompile(`(?i)100%\s*(free|kostenlos|gratis)`)},
	{"long_caps_run", regexp.MustCompile(`[A-ZÄÖÜ]{12,}`)},
}

var autoReplyKeywords = []string{
	"out of office", "abwesenheitsnotiz", "automatic reply",
	"automatische antwort", "auto-reply", "autoreply",
	"currently out of the office", "bin derzeit nicht erreichbar",
	"urlaubsvertretung", "do not reply to this message",
}

var autoReplySubjectPrefix = namedPattern{
	"auto_reply_subject_prefix",
	regexp.MustCompile(`(?i)^(out of office:|automatic reply:|automatische antwort:|abwesenheitsnotiz:|auto:)`),
}

var newsletterKeywords = []string{
	"unsubscribe", "abmelden", "abbestellen", "newsletter",
	"view in browser", "im browser ansehen", "weekly digest",
	"monatlicher rückblick", "sonderangebot", "special offer",
	"email preferences", "mailing list", "verteiler",
}

// Keywords that almost never appear outside bulk mail; they count double.
var newsletterStrongKeywords = map[string]struct{}{
	"unsubscribe": {},
	"abmelden":    {},
}

// No-reply senders are deliberately absent here; they belong to the system
// notification family below.
var newsletterSenderPatterns = []namedPattern{
	{"newsletter_sender", regexp.MustCompile(`(?i)^(newsletter|news|marketing|kampagne|campaign|mailer)[@.\-]`)},
	{"bulk_sender", regexp.MustCompile(`(?i)^(bulk|massmail|broadcast)@`)},
}

var notificationKeywords = []string{
	"password reset", "passwort zurücksetzen", "verification code",
	"bestätigungscode", "security alert", "sicherheitswarnung",
	"your order", "ihre bestellung", "order confirmation",
	"bestellbestätigung", "invoice", "rechnung", "payment received",
	"zahlungseingang", "login attempt", "anmeldeversuch",
	"account statement", "kontoauszug",
}

var notificationSenderPatterns = []namedPattern{
	{"system_sender", regexp.MustCompile(`(?i)^(no-?reply|noreply|notification|alert|system|support|service|admin|security)@`)},
	{"notification_subdomain", regexp.MustCompile(`(?i)@(notifications?|alerts?|accounts?|mailer)\.`)},
}

// RuleClassifier is the stateless first layer: curated keyword and regex
// sets over subject, body and sender. No I/O; never returns an error.
type RuleClassifier struct {
	logger *zap.Logger
}

// NewRuleClassifier creates a new rule classifier.
func NewRuleClassifier(logger *zap.Logger) *RuleClassifier {
	return &RuleClassifier{logger: logger}
}

// Classify scores the four pattern families in fixed priority order
// (spam, auto-reply, newsletter, system notification); the first family
// clearing its threshold wins.
func (c *RuleClassifier) Classify(_ context.Context, email *Email) (*LayerResult, error) {
	subject := email.Subject
	body := email.Body
	text := subject + "\n" + body
	folded := cases.Fold().String(text)
	sender, _ := NormalizeSender(email.Sender)

	var matched []string
	anySignal := false

	// 1. Spam
	spamScore := 0
	for _, kw := range spamKeywords {
		if strings.Contains(folded, kw) {
			spamScore++
			matched = append(matched, "spam_keyword:"+kw)
		}
	}
	for _, p := range spamPatterns {
		if p.re.MatchString(text) {
			spamScore += 2
			matched = append(matched, "spam_pattern:"+p.name)
		}
	}
	if len(subject) > 10 && mostlyUppercase(subject) {
		spamScore++
		matched = append(matched, "spam_heuristic:uppercase_subject")
	}
	anySignal = anySignal || spamScore > 0
	if spamScore >= 3 {
		c.logger.Debug("Rule layer matched spam patterns",
			zap.Int("score", spamScore),
			zap.Strings("patterns", matched))
		return c.result(CategorySpam, 0.0, ruleSpamConfidence,
			fmt.Sprintf("spam patterns matched (score %d)", spamScore), matched), nil
	}

	// 2. Auto-reply
	autoScore := 0
	for _, kw := range autoReplyKeywords {
		if strings.Contains(folded, kw) {
			autoScore += 2
			matched = append(matched, "auto_reply_keyword:"+kw)
		}
	}
	if autoReplySubjectPrefix.re.MatchString(subject) {
		autoScore += 3
		matched = append(matched, "auto_reply_pattern:"+autoReplySubjectPrefix.name)
	}
	anySignal = anySignal || autoScore > 0
	if autoScore >= 2 {
		return c.result(CategoryNewsletter, 0.1, ruleAutoReplyConfidence,
			fmt.Sprintf("auto-reply patterns matched (score %d)", autoScore), matched), nil
	}

	// 3. Newsletter
	newsScore := 0
	for _, kw := range newsletterKeywords {
		if strings.Contains(folded, kw) {
			newsScore++
			if _, strong := newsletterStrongKeywords[kw]; strong {
				newsScore++
			}
			matched = append(matched, "newsletter_keyword:"+kw)
		}
	}
	for _, p := range newsletterSenderPatterns {
		if p.re.MatchString(sender) {
			newsScore += 2
			matched = append(matched, "newsletter_sender:"+p.name)
			break
		}
	}
	anySignal = anySignal || newsScore > 0
	if newsScore >= 2 {
		return c.result(CategoryNewsletter, 0.3, ruleNewsletterConfidence,
			fmt.Sprintf("newsletter patterns matched (score %d)", newsScore), matched), nil
	}

	// 4. System notification
	notifScore := 0
	for _, kw := range notificationKeywords {
		if strings.Contains(folded, kw) {
			notifScore++
			matched = append(matched, "notification_keyword:"+kw)
		}
	}
	for _, p := range notificationSenderPatterns {
		if p.re.MatchString(sender) {
			notifScore += 2
			matched = append(matched, "notification_sender:"+p.name)
			break
		}
	}
	anySignal = anySignal || notifScore > 0
	if notifScore >= 2 {
		return c.result(CategoryNewsletter, 0.4, ruleNotificationConfidence,
			fmt.Sprintf("system notification patterns matched (score %d)", notifScore), matched), nil
	}

	if anySignal {
		return c.result(CategoryNewsletter, 0.5, ruleWeakConfidence,
			"weak patterns only", matched), nil
	}
	return c.result(CategoryNewsletter, 0.5, ruleNoMatchConfidence,
		"no pattern match", nil), nil
}

func (c *RuleClassifier) result(cat Category, importance, confidence float64, reasoning string, matched []string) *LayerResult {
	return &LayerResult{
		Layer:           LayerRules,
		Category:        cat,
		Importance:      Clamp01(importance),
		Confidence:      Clamp01(confidence),
		Reasoning:       reasoning,
		MatchedPatterns: matched,
	}
}

// mostlyUppercase reports whether more than half of the letters in s are
// uppercase.
func mostlyUppercase(s string) bool {
	letters, upper := 0, 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	return letters > 0 && float64(upper) > 0.5*float64(letters)
}
