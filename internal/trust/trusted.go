package trust

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Checker answers whether a sender domain is on the trusted list. Mail from
// trusted domains bypasses classification entirely.
type Checker struct {
	mu      sync.RWMutex
	domains map[string]struct{}
	logger  *zap.Logger
}

// NewChecker builds a checker from a static domain list plus an optional
// file with one domain per line ('#' starts a comment).
func NewChecker(domains []string, filePath string, logger *zap.Logger) (*Checker, error) {
	c := &Checker{
		domains: make(map[string]struct{}, len(domains)),
		logger:  logger,
	}
	for _, d := range domains {
		c.add(d)
	}
	if filePath != "" {
		if err := c.loadFile(filePath); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Checker) add(domain string) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain != "" {
		c.domains[domain] = struct{}{}
	}
}

func (c *Checker) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open trusted domains file: %w", err)
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		c.add(line)
		count++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read trusted domains file: %w", err)
	}

	c.logger.Info("Loaded trusted domains", zap.String("path", path), zap.Int("count", count))
	return nil
}

// IsTrusted reports whether domain or one of its parent domains is trusted,
// so "mail.example.com" matches an entry for "example.com".
func (c *Checker) IsTrusted(domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for {
		if _, ok := c.domains[domain]; ok {
			return true
		}
		i := strings.Index(domain, ".")
		if i < 0 {
			return false
		}
		domain = domain[i+1:]
	}
}
