package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smazurov/camrecd/internal/cameras"
	"github.com/smazurov/camrecd/internal/session"
)

// Reconcile applies a reloaded camera list. New enabled cameras start,
// removed or disabled ones stop, and cameras whose pipeline settings
// changed are stopped and started again after the restart delay. Flag-only
// changes are applied in place. A replaced session keeps the runtime
// recording and live-view requests unless the file changed them, and a
// camera the operator stopped stays stopped.
func (s *Supervisor) Reconcile(ctx context.Context, cams []cameras.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	wanted := make(map[int]cameras.Settings, len(cams))
	for i, cam := range cams {
		wanted[i] = cam.Normalize(i)
	}

	for _, index := range s.indexes() {
		if _, ok := wanted[index]; ok {
			continue
		}
		sess := s.sessions[index]
		s.logger.Info("Camera removed", "index", index, "camera", sess.Settings().Name)
		if err := sess.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop removed camera %d: %w", index, err))
		}
		delete(s.sessions, index)
		s.statusMu.Lock()
		delete(s.states, index)
		s.statusMu.Unlock()
	}

	var restarts []int
	for index := 0; index < len(cams); index++ {
		next := wanted[index]
		sess, ok := s.sessions[index]
		if !ok {
			s.logger.Info("Camera added", "index", index, "camera", next.Name)
			s.sessions[index] = s.newSession(index, next)
			if next.IsEnabled() {
				if err := s.sessions[index].Start(ctx, ""); err != nil {
					errs = append(errs, fmt.Errorf("start camera %d: %w", index, err))
				}
			}
			continue
		}

		prev := sess.Settings()
		running := sess.State() != session.StateIdle

		switch {
		case !next.IsEnabled():
			if running {
				s.logger.Info("Camera disabled", "index", index)
				if err := sess.Stop(ctx); err != nil {
					errs = append(errs, fmt.Errorf("stop camera %d: %w", index, err))
				}
			}
			s.sessions[index] = s.newSession(index, next)

		case cameras.RestartRequired(prev, next):
			s.logger.Info("Camera settings changed, restarting", "index", index, "uri", cameras.Redact(next.URI))
			st := sess.Status()
			if running {
				if err := sess.Stop(ctx); err != nil {
					errs = append(errs, fmt.Errorf("stop camera %d: %w", index, err))
				}
			}
			replacement := s.newSession(index, next)
			if prev.RecordOnStart == next.RecordOnStart {
				_ = replacement.SetRecordingActive(ctx, st.RecordingWanted)
			}
			if prev.LiveViewEnabled() == next.LiveViewEnabled() {
				replacement.SetLiveViewEnabled(st.LiveView)
			}
			s.sessions[index] = replacement
			if running || !prev.IsEnabled() {
				restarts = append(restarts, index)
			}

		default:
			sess.UpdateFlags(next)
			if prev.LiveViewEnabled() != next.LiveViewEnabled() {
				sess.SetLiveViewEnabled(next.LiveViewEnabled())
			}
			if !prev.IsEnabled() {
				if err := sess.Start(ctx, ""); err != nil && !errors.Is(err, session.ErrAlreadyRunning) {
					errs = append(errs, fmt.Errorf("start camera %d: %w", index, err))
				}
			}
		}
	}

	if len(restarts) > 0 {
		select {
		case <-time.After(s.opts.RestartDelay):
		case <-ctx.Done():
			return errors.Join(append(errs, ctx.Err())...)
		}
		for _, index := range restarts {
			if err := s.sessions[index].Start(ctx, ""); err != nil {
				errs = append(errs, fmt.Errorf("restart camera %d: %w", index, err))
			}
		}
	}

	return errors.Join(errs...)
}
