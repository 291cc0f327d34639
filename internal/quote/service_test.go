package quote

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeline/forgeline/internal/pricing"
)

func newTestService() *Service {
	s := NewService(pricing.NewCalculator(pricing.DefaultTables()), nil)
	s.now = func() time.Time { return time.UnixMilli(1767225600000) }
	s.suffix = func() string { return "ABCD1234" }
	return s
}

func validRequest() *Request {
	return &Request{
		Material: "mild-steel",
		Quantity: 5,
		Name:     "Dana Ortiz",
		Email:    "dana@example.com",
	}
}

func TestSubmit_PricesValidRequest(t *testing.T) {
	s := newTestService()

	resp, err := s.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, "Q-1767225600000-ABCD1234", resp.QuoteID)
	assert.Equal(t, int64(100), resp.Pricing.LowPrice)
	assert.Equal(t, int64(150), resp.Pricing.HighPrice)
	assert.Equal(t, 5, resp.Pricing.EstLeadDays)
	assert.Contains(t, resp.Message, "$100 – $150")
	assert.Contains(t, resp.Message, "5 business days")
}

func TestSubmit_DerivesComplexityFromFiles(t *testing.T) {
	s := newTestService()

	req := &Request{
		Material: "Stainless-Steel-316",
		Quantity: 600,
		Rush:     true,
		Name:     "Lee",
		Email:    "lee@example.com",
		Files: []File{
			{Name: "bracket.STEP", Size: 2 << 20},
			{Name: "bracket.pdf", Size: 300 << 10},
		},
	}

	resp, err := s.Submit(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "stainless-steel-316", resp.Pricing.Breakdown.Material)
	assert.Equal(t, pricing.ComplexityComplex, resp.Pricing.Breakdown.Complexity)
	assert.Equal(t, int64(86249), resp.Pricing.LowPrice)
	assert.Equal(t, int64(129373), resp.Pricing.HighPrice)
	assert.Equal(t, 1, resp.Pricing.EstLeadDays)
	assert.Contains(t, resp.Message, "$86,249 – $129,373")
	assert.Contains(t, resp.Message, "1 business day.")
}

func TestSubmit_FlatFilesAreModerate(t *testing.T) {
	s := newTestService()
	req := validRequest()
	req.Files = []File{{Name: "plate.dxf", Size: 1024}, {Name: "logo.ai", Size: 1024}}

	resp, err := s.Submit(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, pricing.ComplexityModerate, resp.Pricing.Breakdown.Complexity)
}

func TestSubmit_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
		field  string
	}{
		{"missing material", func(r *Request) { r.Material = "  " }, "material"},
		{"zero quantity", func(r *Request) { r.Quantity = 0 }, "quantity"},
		{"quantity over cap", func(r *Request) { r.Quantity = 10001 }, "quantity"},
		{"missing name", func(r *Request) { r.Name = "" }, "name"},
		{"missing email", func(r *Request) { r.Email = "" }, "email"},
		{"bad email", func(r *Request) { r.Email = "not-an-email" }, "email"},
		{"long notes", func(r *Request) { r.Notes = strings.Repeat("x", 2001) }, "notes"},
		{"too many files", func(r *Request) {
			for i := 0; i < 6; i++ {
				r.Files = append(r.Files, File{Name: "part.dxf", Size: 10})
			}
		}, "files"},
		{"bad extension", func(r *Request) { r.Files = []File{{Name: "part.exe", Size: 10}} }, "files"},
		{"no extension", func(r *Request) { r.Files = []File{{Name: "part", Size: 10}} }, "files"},
		{"file too large", func(r *Request) { r.Files = []File{{Name: "part.pdf", Size: MaxFileBytes + 1}} }, "files"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService()
			req := validRequest()
			tt.mutate(req)

			resp, err := s.Submit(context.Background(), req)
			require.Error(t, err)
			assert.Nil(t, resp)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "want *ValidationError, got %T", err)
			assert.Equal(t, tt.field, verr.Field)
			assert.NotEmpty(t, verr.Message)
		})
	}
}

func TestSubmit_QuantityMessage(t *testing.T) {
	s := newTestService()
	req := validRequest()
	req.Quantity = 20000

	_, err := s.Submit(context.Background(), req)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "quantity must be between 1 and 10,000", verr.Message)
}

func TestSubmit_FiveFilesAllowed(t *testing.T) {
	s := newTestService()
	req := validRequest()
	for _, name := range []string{"a.dxf", "b.dwg", "c.step", "d.stp", "e.pdf"} {
		req.Files = append(req.Files, File{Name: name, Size: MaxFileBytes})
	}

	_, err := s.Submit(context.Background(), req)
	assert.NoError(t, err)
}

func TestSubmit_FileLimitIsBinary(t *testing.T) {
	s := newTestService()

	req := validRequest()
	req.Files = []File{{Name: "bracket.step", Size: 50 * 1024 * 1024}}
	_, err := s.Submit(context.Background(), req)
	require.NoError(t, err, "a 50 MiB drawing is within the limit")

	req = validRequest()
	req.Files = []File{{Name: "frame.step", Size: 60 * 1024 * 1024}}
	_, err = s.Submit(context.Background(), req)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "frame.step is 60 MiB; the limit is 50 MiB per file", verr.Message)
}

func TestSubmit_CanceledContext(t *testing.T) {
	s := newTestService()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Submit(ctx, validRequest())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewQuoteID_Format(t *testing.T) {
	s := NewService(pricing.NewCalculator(pricing.DefaultTables()), nil)

	a := s.NewQuoteID()
	b := s.NewQuoteID()

	assert.Regexp(t, `^Q-\d{13}-[0-9A-F]{8}$`, a)
	assert.NotEqual(t, a, b)
}

func TestHasComplexFiles(t *testing.T) {
	assert.False(t, HasComplexFiles(nil))
	assert.False(t, HasComplexFiles([]File{{Name: "a.pdf"}, {Name: "b.DXF"}}))
	assert.True(t, HasComplexFiles([]File{{Name: "a.pdf"}, {Name: "b.Dwg"}}))
}
