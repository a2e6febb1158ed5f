package service

import (
	"context"
	"errors"
	"time"

	"github.com/romanzh1/english-tutor/internal/models"
	"github.com/romanzh1/english-tutor/internal/parser"
)

var ErrEmptyMessage = errors.New("empty message")

// Completer produces the tutor's reply for one user turn.
type Completer interface {
	Stream(ctx context.Context, session *models.Session, userText string, onToken func(string)) (string, error)
}

var _ models.Service = (*Service)(nil)

type Service struct {
	repo      models.Repository
	completer Completer
	parser    parser.Parser
	now       func() time.Time
}

func NewService(repo models.Repository, completer Completer, p parser.Parser) *Service {
	if p == nil {
		p = parser.New()
	}

	return &Service{
		repo:      repo,
		completer: completer,
		parser:    p,
		now:       time.Now,
	}
}

func (s *Service) CheckStore(ctx context.Context) (map[string]int, error) {
	return s.repo.TableCounts(ctx)
}
