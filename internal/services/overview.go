package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/finance"
)

// Section is one resource's slice of the overview.
type Section struct {
	Resource string
	Key      string
	Entry    *Entry
	Count    int
}

// Overview gathers the current period of every resource for one user.
type Overview struct {
	UserID   string
	Month    string
	Year     string
	Sections []Section
}

// Overview loads every resource ledger concurrently and picks the entry for
// month (or its year, for year-keyed resources).
func (s *LedgerService) Overview(ctx context.Context, userID string, month time.Time) (Overview, error) {
	if userID == "" {
		return Overview{}, ErrMissingUser
	}
	names := s.Resources()
	ov := Overview{
		UserID:   userID,
		Month:    finance.MonthKey(month),
		Year:     finance.YearKey(month),
		Sections: make([]Section, len(names)),
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			res, err := s.Resource(name)
			if err != nil {
				return err
			}
			view, err := s.Ledger(gctx, name, userID)
			if err != nil {
				return fmt.Errorf("load %s: %w", name, err)
			}
			sec := Section{
				Resource: name,
				Key:      finance.CurrentKey(res, month),
				Count:    len(view.Entries),
			}
			for j := range view.Entries {
				if view.Entries[j].Key == sec.Key {
					sec.Entry = &view.Entries[j]
					break
				}
			}
			ov.Sections[i] = sec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Overview{}, err
	}
	return ov, nil
}
