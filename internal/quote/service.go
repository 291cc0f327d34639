package quote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/forgeline/forgeline/internal/pricing"
)

var quotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "forgeline_quotes_total",
	Help: "Quote submissions by outcome.",
}, []string{"outcome"})

type Response struct {
	QuoteID string         `json:"quote_id"`
	Pricing pricing.Result `json:"pricing"`
	Message string         `json:"message"`
}

type Service struct {
	calc   *pricing.Calculator
	now    func() time.Time
	suffix func() string
	logger *zap.Logger
}

func NewService(calc *pricing.Calculator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		calc:   calc,
		now:    time.Now,
		suffix: randomSuffix,
		logger: logger,
	}
}

// Submit validates req and prices it. Rejections are *ValidationError.
func (s *Service) Submit(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := req.Validate(); err != nil {
		quotesTotal.WithLabelValues("rejected").Inc()
		var verr *ValidationError
		if errors.As(err, &verr) {
			s.logger.Info("quote rejected", zap.String("field", verr.Field), zap.String("reason", verr.Message))
		}
		return nil, err
	}

	result := s.calc.Calculate(pricing.Input{
		Material:        strings.ToLower(req.Material),
		Quantity:        req.Quantity,
		Rush:            req.Rush,
		FileCount:       len(req.Files),
		HasComplexFiles: HasComplexFiles(req.Files),
	})

	id := s.NewQuoteID()
	quotesTotal.WithLabelValues("priced").Inc()
	s.logger.Info("quote priced",
		zap.String("quote_id", id),
		zap.String("material", result.Breakdown.Material),
		zap.Int("quantity", req.Quantity),
		zap.Bool("rush", req.Rush),
		zap.Int64("low", result.LowPrice),
		zap.Int64("high", result.HighPrice))

	return &Response{
		QuoteID: id,
		Pricing: result,
		Message: Message(result),
	}, nil
}

// NewQuoteID combines the submission time with a random suffix.
func (s *Service) NewQuoteID() string {
	return fmt.Sprintf("Q-%d-%s", s.now().UnixMilli(), s.suffix())
}

func randomSuffix() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Message renders the customer-facing summary of a price band.
func Message(r pricing.Result) string {
	days := "business days"
	if r.EstLeadDays == 1 {
		days = "business day"
	}
	return fmt.Sprintf("Estimated price $%s – $%s, ready in about %d %s. We'll confirm within one business day.",
		humanize.Comma(r.LowPrice), humanize.Comma(r.HighPrice), r.EstLeadDays, days)
}
