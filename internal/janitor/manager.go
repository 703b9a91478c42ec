package janitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

type Manager struct {
	cfg Config

	retention *RetentionCollector
	reaper    *Reaper

	started atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	runErrMu sync.Mutex
	runErr   error
}

func NewManager(cfg Config) (*Manager, error) {
	cfg.Retention = cfg.Retention.withDefaults()
	cfg.Reaper = cfg.Reaper.withDefaults()
	return &Manager{
		cfg:       cfg,
		retention: nil,
		reaper:    nil,
	}, nil
}

func (m *Manager) WithRetention(retention *RetentionCollector) *Manager {
	if m == nil {
		return nil
	}
	m.retention = retention
	if m.retention != nil {
		m.retention.cfg = m.cfg.Retention
	}
	return m
}

func (m *Manager) WithReaper(reaper *Reaper) *Manager {
	if m == nil {
		return nil
	}
	m.reaper = reaper
	if m.reaper != nil {
		m.reaper.cfg = m.cfg.Reaper
	}
	return m
}

func (m *Manager) Start(ctx context.Context) error {
	if m == nil {
		return errors.New("manager is nil")
	}
	if !m.started.CompareAndSwap(false, true) {
		return errors.New("manager already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	if m.cfg.Retention.Enabled {
		if m.retention == nil {
			m.cancel()
			return errors.New("retention collector is required when retention enabled")
		}
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := m.retention.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				m.runErrMu.Lock()
				if m.runErr == nil {
					m.runErr = err
				}
				m.runErrMu.Unlock()
				m.cancel()
			}
		}()
	}

	if m.cfg.Reaper.Enabled {
		if m.reaper == nil {
			m.cancel()
			return errors.New("reaper is required when reaper enabled")
		}
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := m.reaper.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				m.runErrMu.Lock()
				if m.runErr == nil {
					m.runErr = err
				}
				m.runErrMu.Unlock()
				m.cancel()
			}
		}()
	}

	return nil
}

func (m *Manager) Stop() {
	if m == nil || m.cancel == nil {
		return
	}
	m.cancel()
}

func (m *Manager) Wait() error {
	if m == nil {
		return nil
	}
	m.wg.Wait()
	m.runErrMu.Lock()
	defer m.runErrMu.Unlock()
	return m.runErr
}
