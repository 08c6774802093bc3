package observer

import (
	"math"

	"animepresence/internal/protocol"
)

// control applies a remote command and re-snapshots immediately.
func (o *Observer) control(action protocol.ControlAction, value *float64) {
	if o.media == nil || !action.Valid() {
		return
	}
	m := o.media

	switch action {
	case protocol.ActionPlay:
		if err := m.Play(); err != nil {
			o.logger.Debug().Err(err).Msg("play rejected")
		}
	case protocol.ActionPause:
		m.Pause()
	case protocol.ActionTogglePlay:
		if m.Paused() {
			if err := m.Play(); err != nil {
				o.logger.Debug().Err(err).Msg("play rejected")
			}
		} else {
			m.Pause()
		}
	case protocol.ActionSeekForward:
		target := m.CurrentTime() + o.step(value)
		if d := m.Duration(); d > 0 && !math.IsInf(d, 0) {
			target = math.Min(target, d)
		}
		m.Seek(target)
	case protocol.ActionSeekBack:
		m.Seek(math.Max(m.CurrentTime()-o.step(value), 0))
	case protocol.ActionSetSpeed:
		if value == nil || *value <= 0 {
			return
		}
		m.SetPlaybackRate(*value)
	}

	o.logger.Debug().Str("action", string(action)).Msg("control applied")
	o.emit(true)
}

func (o *Observer) step(value *float64) float64 {
	if value != nil && *value > 0 {
		return *value
	}
	return o.cfg.SeekStep
}
