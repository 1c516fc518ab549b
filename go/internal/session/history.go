package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/mcdev12/showdown/go/internal/archive"
	"github.com/mcdev12/showdown/go/internal/game"
	"github.com/mcdev12/showdown/go/internal/holdem"
	"github.com/mcdev12/showdown/go/internal/reasoning"
)

func (s *Session) archiveReasoning(gen *generation, move holdem.Move, c reasoning.Completion, rejected bool) {
	if s.deps.Archiver == nil {
		return
	}
	rec := archive.ReasoningRecord{
		ID:         uuid.NewString(),
		SessionID:  s.id,
		HandNumber: s.authority.HandNumber(),
		Street:     s.authority.Snapshot().Street,
		Actor:      gen.actor,
		Name:       s.slots[gen.actor].Name,
		Model:      gen.model,
		Text:       c.FullText,
		Move:       move.String(),
		Fallback:   c.Fallback() || rejected,
		DurationMS: c.Duration.Milliseconds(),
		At:         s.deps.Clock.Now().UTC(),
	}
	if c.Err != nil {
		rec.Error = c.Err.Error()
	}
	if err := s.deps.Archiver.ArchiveReasoning(context.Background(), rec); err != nil {
		s.logger.Warn().Err(err).Int("actor", gen.actor).Msg("failed to archive reasoning")
	}
}

func (s *Session) archiveHand(res *game.HandResult) {
	if s.deps.Archiver == nil {
		return
	}
	rec := archive.HandRecord{
		ID:         uuid.NewString(),
		SessionID:  s.id,
		HandNumber: res.HandNumber,
		Pot:        res.Pot,
		Board:      res.Board,
		Winners:    res.Winners,
		Amounts:    res.Amounts,
		Showdown:   res.Showdown,
		Revealed:   res.Revealed,
		Hands:      res.Hands,
		Stacks:     res.Stacks,
		At:         s.deps.Clock.Now().UTC(),
	}
	if err := s.deps.Archiver.ArchiveHand(context.Background(), rec); err != nil {
		s.logger.Warn().Err(err).Int("hand", res.HandNumber).Msg("failed to archive hand")
	}
}
