package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"briefsmith/internal/client"
	"briefsmith/internal/config"
	"briefsmith/internal/daemon"
)

const cliTokenTTL = 15 * time.Minute

type commandContext struct {
	configFlag *string
	userFlag   *string

	configOnce sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error
}

func newCommandContext(configFlag, userFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		userFlag:   userFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) user() string {
	if c.userFlag != nil {
		if user := strings.TrimSpace(*c.userFlag); user != "" {
			return user
		}
	}
	return daemon.LocalUser
}

// bearer picks the credential the CLI presents: the static token when set,
// otherwise a short-lived JWT minted from the shared secret.
func (c *commandContext) bearer(cfg *config.Config) (string, error) {
	if token := strings.TrimSpace(cfg.API.Token); token != "" {
		return token, nil
	}
	if secret := strings.TrimSpace(cfg.API.JWTSecret); secret != "" {
		return daemon.IssueToken(secret, cfg.API.JWTIssuer, c.user(), cliTokenTTL)
	}
	return "", nil
}

func (c *commandContext) apiClient() (*client.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	token, err := c.bearer(cfg)
	if err != nil {
		return nil, fmt.Errorf("build credentials: %w", err)
	}
	return client.New(cfg.API.Bind, token)
}

func (c *commandContext) withClient(fn func(*client.Client) error) error {
	apiClient, err := c.apiClient()
	if err != nil {
		return err
	}
	return wrapAPIError(fn(apiClient))
}

func wrapAPIError(err error) error {
	if err == nil {
		return nil
	}
	if client.IsAPIUnavailable(err) {
		return fmt.Errorf("connect to daemon: %w; start it with `briefsmith daemon`", err)
	}
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// attemptToken returns the --idempotency-key flag value or a fresh token.
func attemptToken(value string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return uuid.NewString()
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
