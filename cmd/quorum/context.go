package main

import (
	"strings"
	"sync"

	"quorum/internal/approval"
	"quorum/internal/config"
	"quorum/internal/fanout"
	"quorum/internal/logging"
	"quorum/internal/store"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withStore opens the task store for the duration of one command.
func (c *commandContext) withStore(fn func(*config.Config, *store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(cfg, st)
}

// withEngine wires a full approval engine with fan-out over the store. CLI
// commands share the daemon's database, so writes made here are visible to a
// running daemon immediately.
func (c *commandContext) withEngine(fn func(*config.Config, *store.Store, *approval.Engine) error) error {
	return c.withStore(func(cfg *config.Config, st *store.Store) error {
		fo := fanout.NewService(st, cfg, fanout.NewPusher(cfg), logging.NewNop())
		eng := approval.New(st, cfg, fo, logging.NewNop())
		return fn(cfg, st, eng)
	})
}
