package summary

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// Collaborator is an optional external text shortener.
type Collaborator interface {
	Shorten(ctx context.Context, text string, maxLen int) (string, error)
}

// Service shortens article text. Native truncation is always available;
// the collaborator is used only when configured and well behaved.
type Service struct {
	collaborator Collaborator
	maxLen       int
	logger       *slog.Logger
}

// New returns a Service. collaborator may be nil.
func New(collaborator Collaborator, maxLen int, logger *slog.Logger) *Service {
	return &Service{
		collaborator: collaborator,
		maxLen:       maxLen,
		logger:       logger.With("component", "summary"),
	}
}

// Available reports whether a collaborator is configured.
func (s *Service) Available() bool {
	return s.collaborator != nil
}

// Shorten asks the collaborator first and falls back to SmartTruncate.
func (s *Service) Shorten(ctx context.Context, text string) string {
	if out, ok := s.collaborate(ctx, text); ok {
		return out
	}
	return SmartTruncate(text, s.maxLen)
}

// Summarize returns the natively truncated summary and, when the
// collaborator produced one, the collaborator's summary.
func (s *Service) Summarize(ctx context.Context, text string) (string, *string) {
	short := SmartTruncate(text, s.maxLen)
	if out, ok := s.collaborate(ctx, text); ok {
		return short, &out
	}
	return short, nil
}

func (s *Service) collaborate(ctx context.Context, text string) (string, bool) {
	text = strings.TrimSpace(text)
	if s.collaborator == nil || text == "" {
		return "", false
	}

	out, err := s.collaborator.Shorten(ctx, text, s.maxLen)
	if err != nil {
		s.logger.Debug("collaborator failed, using truncation", "error", err)
		return "", false
	}

	out = strings.TrimSpace(out)
	if out == "" || utf8.RuneCountInString(out) > s.maxLen {
		s.logger.Debug("collaborator output rejected", "length", utf8.RuneCountInString(out))
		return "", false
	}
	return out, true
}
