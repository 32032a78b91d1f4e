package persistence

import (
	"fmt"

	"github.com/gofrs/flock"
	"github.com/tcriess/lightspeed-messenger/config"
	"github.com/tcriess/lightspeed-messenger/globals"
)

// NewPersister opens the configured store. If a flock path is configured, an exclusive lock is held on it until the
// persister is closed, so a second server process cannot share the store (presence is process-local).
func NewPersister(cfg *config.Config) (Persister, error) {
	var fileLock *flock.Flock
	if cfg.PersistenceConfig.FlockPath != "" {
		fileLock = flock.New(cfg.PersistenceConfig.FlockPath)
		locked, err := fileLock.TryLock()
		if err != nil {
			return nil, err
		}
		if !locked {
			return nil, fmt.Errorf("store is locked by another process (%s)", cfg.PersistenceConfig.FlockPath)
		}
	}
	var p Persister
	var err error
	switch cfg.PersistenceConfig.Type {
	case "", "buntdb":
		p, err = NewBuntPersister(cfg)
	case "sqlite", "postgres":
		p, err = NewGormPersister(cfg)
	default:
		err = fmt.Errorf("unknown persistence type %q", cfg.PersistenceConfig.Type)
	}
	if err != nil {
		if fileLock != nil {
			_ = fileLock.Unlock()
		}
		return nil, err
	}
	globals.AppLogger.Info("persistence ready", "type", cfg.PersistenceConfig.Type, "dsn", cfg.PersistenceConfig.DSN)
	if fileLock == nil {
		return p, nil
	}
	return &lockedPersister{Persister: p, lock: fileLock}, nil
}

type lockedPersister struct {
	Persister
	lock *flock.Flock
}

func (p *lockedPersister) Close() error {
	err := p.Persister.Close()
	if uerr := p.lock.Unlock(); uerr != nil && err == nil {
		err = uerr
	}
	return err
}
