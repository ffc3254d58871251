package refresher

import (
	"context"
	"log"
	"time"

	"nextup/models"
)

// Start launches the periodic refresh loop. interval <= 0 disables the loop.
// current supplies the identity whose list gets refreshed each cycle. The
// first run fires immediately.
func (s *Service) Start(interval time.Duration, current func() models.Identity) {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.running || interval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Printf("[refresher] loop started, interval %s", interval)

		s.runOnce(ctx, current)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Printf("[refresher] loop stopped")
				return
			case <-ticker.C:
				s.runOnce(ctx, current)
			}
		}
	}()
}

// Stop cancels the loop and waits for the in-flight cycle to finish.
func (s *Service) Stop() {
	s.loopMu.Lock()
	if !s.running {
		s.loopMu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.loopMu.Unlock()

	s.wg.Wait()
}

func (s *Service) runOnce(ctx context.Context, current func() models.Identity) {
	id := current()
	list := s.repo.GetShows(ctx, id)
	s.RefreshStale(ctx, id, list)
}
